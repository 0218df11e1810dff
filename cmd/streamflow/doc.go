// Copyright (c) StreamFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 StreamFlow 服务端程序入口。

# 概述

cmd/streamflow 是消息路由与调度服务的可执行入口。程序接受 OneBot v11
反向 WebSocket 连接，把事件按会话流分区后交给自适应调度器处理，
支持 YAML 配置文件加载、结构化日志（zap）、Prometheus 指标采集
与 OpenTelemetry 追踪。

# 核心类型

  - App          — 服务装配体，管理流水线、遥测与指标端点的启停
  - logProcessor — 默认消息处理器（日志回显），接入 LLM 后端时替换

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 指标端点：独立端口暴露 /metrics（Prometheus）与 /health
  - 优雅关闭：信号监听 → 断开接入 → 停路由与调度 → 刷遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
