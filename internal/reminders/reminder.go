// Package reminders implements durable one-shot user reminders on top of
// the deferred-task registry.
package reminders

import (
	"context"
	"encoding/json"

	"remibot/internal/task/reload"
	kit "remibot/internal/transport"
	logx "remibot/pkg/logx"
)

const Category = "reminder"

// Sink is where fired reminders go. The notifier pipeline satisfies it.
type Sink interface {
	Notify(n kit.Notification) error
}

// Reminder is one scheduled user reminder. The payload fields round-trip
// through storage; delivery wiring (sink, logger) is reattached by the
// codec on replay.
type Reminder struct {
	meta reload.Meta

	Text     string `json:"text"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`

	sink Sink
	log  logx.Logger
}

func (r *Reminder) Meta() *reload.Meta      { return &r.meta }
func (r *Reminder) Encode() ([]byte, error) { return json.Marshal(r) }

func (r *Reminder) Execute(context.Context) {
	if r.sink == nil {
		r.log.Error("reminder fired without a sink", logx.String("id", r.meta.ID))
		return
	}
	r.log.Info("reminder fired",
		logx.String("id", r.meta.ID),
		logx.Int64("owner", r.meta.Owner),
		logx.Int64("chat_id", r.ChatID),
	)
	err := r.sink.Notify(kit.Notification{
		Target: kit.ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID},
		Text:   "⏰ Reminder: " + r.Text,
	})
	if err != nil {
		r.log.Warn("reminder delivery rejected", logx.String("id", r.meta.ID), logx.Err(err))
	}
}

// Codec restores reminders during replay.
type Codec struct {
	Sink Sink
	Log  logx.Logger
}

func (Codec) Category() string { return Category }

func (c Codec) Decode(meta reload.Meta, payload []byte) (reload.Task, error) {
	var r Reminder
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, err
	}
	r.meta = meta
	r.sink = c.Sink
	r.log = c.Log
	return &r, nil
}
