// Package logx is a thin structured-logging layer over zerolog.
//
// It exists so components can log through a stable, minimal API while the
// sink set (console, file, Telegram admin chat) is swapped at runtime via
// Service.Apply() during config hot-reload.
package logx
