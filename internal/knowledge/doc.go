// Package knowledge 从本地 JSON 文件加载客服知识条目，供函数调用工具检索。
package knowledge
