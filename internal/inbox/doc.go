// Package inbox 通过消息队列接收待处理的用户消息，并由单个消费者依次交给分派器处理。
//
// 支持内存、Redis list 与 RabbitMQ 三种队列。消息以 JSON 编码的 Envelope 传递。
package inbox
