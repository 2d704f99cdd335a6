// Package logx is a thin structured-logging facade over zerolog.
//
// It exists so components can hold a Logger value that stays live across
// runtime reconfiguration: the Service owns the root logger and its sinks
// (console, file, Telegram), and every Logger derived from it follows
// Apply() changes without being rebuilt.
package logx
