// Package registrar сохраняет собранные workflow в хранилище и
// оповещает о новых версиях.
//
// Для каждого workflow (в алфавитном порядке id):
//  1. Store.Register сохраняет снимок графа; неизменённый граф новой
//     версии не создаёт.
//  2. Для новой версии Notifier публикует событие. Ошибка публикации
//     только логируется: версия уже сохранена.
package registrar
