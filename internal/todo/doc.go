// Package todo 提供持久化的待办事项存储。
//
// Store 在内存中维护整份记录集合，每次变更后把完整集合写回 Backend。
// 后端可以是本地 JSON 文件、Redis 中的单个键或 MySQL 中的单行文档。
package todo
