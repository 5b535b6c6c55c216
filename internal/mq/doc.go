// Package mq публикует и читает события о регистрации workflow через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением, интерфейс Channel
//   - topology.go   — exchange, очередь и привязка
//   - publisher.go  — конверт Message и публикация событий
//   - consumer.go   — чтение событий (команда watch)
//
// Топология:
//
//	dagfactory.workflows (topic)
//	└── workflows.registered [routing: workflow.registered]
//
// Событие публикуется только для новой версии workflow: повторная
// регистрация неизменённого графа сообщений не порождает.
package mq
