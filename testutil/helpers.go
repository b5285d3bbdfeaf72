// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/csescout/types"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	t.Helper()
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertRoles 断言消息序列的角色
func AssertRoles(t *testing.T, msgs []types.Message, roles ...types.Role) {
	t.Helper()

	if len(msgs) != len(roles) {
		t.Errorf("message count mismatch: expected %d, got %d", len(roles), len(msgs))
		return
	}
	for i, r := range roles {
		if msgs[i].Role != r {
			t.Errorf("message[%d] role mismatch: expected %q, got %q", i, r, msgs[i].Role)
		}
	}
}

// AssertEventuallyTrue 轮询直到条件满足或超时
func AssertEventuallyTrue(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("condition not met within %s", timeout)
}

// =============================================================================
// 🧰 数据工具
// =============================================================================

// MustJSON 序列化，失败时 panic
func MustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
