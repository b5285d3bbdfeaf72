// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 API 与 Metrics 端口的 http.Server 生命周期。

# 核心类型

  - Manager：非阻塞 Start、可重复调用的 Shutdown、信号等待 WaitForShutdown。
    ListenAddr 返回实际绑定地址，":0" 启动后可直接取得随机端口。
  - Config：读写/空闲/请求头超时、优雅关闭超时，以及可选的 TLS 证书与私钥。

# 行为

  - 端口占用等监听错误由 Start 同步返回；服务中途异常通过 Errors() 传递。
  - 配置证书后使用 tlsutil.DefaultTLSConfig（TLS 1.2+、AEAD 套件）。
  - 超过 ShutdownTimeout 仍未排空时强制关闭剩余连接。
*/
package server
