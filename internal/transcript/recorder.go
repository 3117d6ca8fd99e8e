// Package transcript captures a ticket channel's message history into an
// immutable archival record. Capture yields a lazy, single-pass session over
// paged history retrieval, so arbitrarily long channels never require one
// unbounded fetch; Deliver consumes the session exactly once and posts the
// rendered transcript as a named attachment to the archive channel. The
// rendering buffer lives only in memory, so nothing lingers on local storage
// on either the success or the failure path.
package transcript

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/ticket-rooms/internal/platform"
)

const timestampLayout = "2006-01-02 15:04:05"

// Record is a single transcript line source: who said what, when.
type Record struct {
	Timestamp time.Time
	Author    string
	Text      string
}

// Recorder reads channel history through the message port.
type Recorder struct {
	messages platform.MessageStore
	pageSize int
}

// NewRecorder constructs a recorder. pageSize bounds each history fetch.
func NewRecorder(messages platform.MessageStore, pageSize int) *Recorder {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Recorder{messages: messages, pageSize: pageSize}
}

// Session is a single-pass cursor over a channel's history. It is not
// restartable; re-capturing requires a fresh Capture call.
type Session struct {
	recorder  *Recorder
	channelID string
	buffer    []platform.Message
	afterID   string
	exhausted bool
	consumed  bool
}

// Capture starts a history pass over the channel, oldest first. Messages
// authored by the engine's own identity are excluded.
func (r *Recorder) Capture(channelID string) *Session {
	return &Session{recorder: r, channelID: channelID}
}

// Next returns the next non-system record. The boolean is false when the
// history is exhausted.
func (s *Session) Next(ctx context.Context) (Record, bool, error) {
	bot := s.recorder.messages.BotIdentity()
	for {
		if len(s.buffer) == 0 {
			if s.exhausted {
				return Record{}, false, nil
			}
			page, err := s.recorder.messages.History(ctx, s.channelID, s.afterID, s.recorder.pageSize)
			if err != nil {
				return Record{}, false, err
			}
			if len(page) == 0 {
				s.exhausted = true
				return Record{}, false, nil
			}
			s.afterID = page[len(page)-1].ID
			if len(page) < s.recorder.pageSize {
				s.exhausted = true
			}
			s.buffer = page
		}
		msg := s.buffer[0]
		s.buffer = s.buffer[1:]
		if msg.AuthorID == bot {
			continue
		}
		return Record{Timestamp: msg.Timestamp, Author: msg.AuthorName, Text: msg.Text}, true, nil
	}
}

// FormatRecord renders one transcript line.
func FormatRecord(rec Record) string {
	return fmt.Sprintf("[%s] %s: %s", rec.Timestamp.UTC().Format(timestampLayout), rec.Author, rec.Text)
}

// Deliver consumes the session, renders the transcript, and posts it as
// transcript-<channel-name>.txt to the archive channel. A session can be
// delivered at most once.
func (r *Recorder) Deliver(ctx context.Context, session *Session, archiveChannelID, channelName, caption string) (int, error) {
	if session.consumed {
		return 0, fmt.Errorf("transcript session for channel %s already consumed", session.channelID)
	}
	session.consumed = true

	var buf bytes.Buffer
	count := 0
	for {
		rec, ok, err := session.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		buf.WriteString(FormatRecord(rec))
		buf.WriteByte('\n')
		count++
	}

	filename := fmt.Sprintf("transcript-%s.txt", channelName)
	if err := r.messages.PostAttachment(ctx, archiveChannelID, filename, buf.Bytes(), caption); err != nil {
		return 0, err
	}
	return count, nil
}
