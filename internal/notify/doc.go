// Package notify sends operator alerts when a run-once reports failed jobs.
//
// Delivery goes through a Telegram bot (telebot). Formatting is separate from
// transport so the message body can be checked without a network.
package notify
