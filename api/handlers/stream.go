package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/csescout/agent"
	"github.com/BaSui01/csescout/api"
	"github.com/BaSui01/csescout/internal/channel"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	// streamReadLimit 首帧请求的大小上限
	streamReadLimit = 64 << 10
	// streamWriteTimeout 单帧写超时，慢客户端不会拖住调度器
	streamWriteTimeout = 10 * time.Second
	// streamHandshakeTimeout 连接后等待首帧的上限
	streamHandshakeTimeout = 30 * time.Second
	// streamBufferSize 待发送的 trace 帧上限，超出时丢弃
	streamBufferSize = 256
)

// streamConn 保护 WebSocket 写操作，写失败后不再尝试
type streamConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	broken bool
}

func (c *streamConn) send(ctx context.Context, msg api.StreamMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return errors.New("stream connection broken")
	}
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		c.broken = true
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// HandleStream 处理 GET /api/v1/query/stream
//
// 客户端升级为 WebSocket 后发送一帧 api.QueryRequest，服务端随后逐条推送
// trace 事件，最后推送 answer 或 error 帧并以正常状态码关闭连接。
// 客户端提前断开会取消运行。
// @Summary 流式研究查询
// @Tags 查询
// @Router /api/v1/query/stream [get]
func (h *QueryHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	// 劫持后的连接会继承 http.Server 的读写超时，长时间运行的查询需要清除
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		// Accept 已经写入了错误响应
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(streamReadLimit)

	req, err := readStreamRequest(r.Context(), conn)
	if err != nil {
		h.logger.Debug("failed to read stream request", zap.Error(err))
		conn.Close(websocket.StatusUnsupportedData, "expected a query request")
		return
	}

	sc := &streamConn{conn: conn}
	if apiErr := h.validate(req.Query); apiErr != nil {
		_ = sc.send(r.Context(), api.StreamMessage{
			Type:  api.StreamError,
			Error: &api.RunFailure{Code: string(apiErr.Code), Message: apiErr.Message},
		})
		conn.Close(websocket.StatusPolicyViolation, "invalid query")
		return
	}

	// 之后不再读取数据帧，对端关闭连接时 ctx 被取消
	ctx := conn.CloseRead(r.Context())

	// trace 帧经 outbox 交给写协程，慢客户端不会阻塞调度器
	outbox := channel.NewOutbox[api.StreamMessage](streamBufferSize)
	written := make(chan error, 1)
	go func() {
		written <- outbox.Drain(ctx, func(msg api.StreamMessage) error { return sc.send(ctx, msg) })
	}()

	ans, err := h.run(ctx, req, func(ev agent.TraceEvent) {
		if !outbox.Offer(api.StreamMessage{Type: api.StreamTrace, Event: &ev}) {
			h.logger.Debug("dropping trace event", zap.String("kind", string(ev.Kind)))
		}
	})
	outbox.Close()
	if werr := <-written; werr != nil {
		h.logger.Debug("trace stream interrupted", zap.Error(werr))
	}
	if st := outbox.Stats(); st.Dropped > 0 {
		h.logger.Warn("trace events dropped for slow client",
			zap.Int64("dropped", st.Dropped), zap.Int64("delivered", st.Delivered))
	}

	var final api.StreamMessage
	if err != nil {
		failure, _ := toRunFailure(err, false)
		final = api.StreamMessage{Type: api.StreamError, Error: failure}
	} else {
		final = api.StreamMessage{Type: api.StreamAnswer, Answer: toQueryResponse(ans, false)}
	}
	if err := sc.send(ctx, final); err != nil {
		h.logger.Debug("client went away before the final frame", zap.Error(err))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// readStreamRequest 读取首帧并解码为 api.QueryRequest。
// wsjson.Read 解码失败时会自行以 1007 关闭连接，这里先取原始帧再解码，由调用方决定关闭码
func readStreamRequest(ctx context.Context, conn *websocket.Conn) (api.QueryRequest, error) {
	var req api.QueryRequest
	ctx, cancel := context.WithTimeout(ctx, streamHandshakeTimeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return req, fmt.Errorf("read first frame: %w", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("decode query request: %w", err)
	}
	return req, nil
}
