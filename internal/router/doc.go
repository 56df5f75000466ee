// Package router 对自由文本消息分类，并把消息分派给待办、天气问答、
// 通用问答或信息确认处理器。
package router
