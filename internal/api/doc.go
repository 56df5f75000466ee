// Package api 通过 REST 接口暴露消息分发与待办查询能力。
//
//	POST /api/v1/messages   {"message": "..."} -> {"response": "..."}
//	POST /api/v1/messages?async=true            -> 202 {"id", "received_at"}
//	GET  /api/v1/todos?filter=active|all|completed
package api
