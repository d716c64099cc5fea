package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	// RulesBoard is synthetic: it is navigable but never stored in the document.
	RulesBoard = "rules"
	// DefaultBoard receives legacy threads and unknown navigation targets.
	DefaultBoard = "random"
)

type (
	BoardName = string
	ThreadId  = string
	ReplyId   = string
)

// Reply is immutable after creation except for deletion.
type Reply struct {
	Id        ReplyId `json:"id"`
	Name      string  `json:"name"`
	AvatarURL string  `json:"avatarUrl"`
	Comment   string  `json:"comment"`
	Image     string  `json:"image"`
	Timestamp string  `json:"timestamp"`

	// Order is the position in which the room first observed this reply.
	Order uint64 `json:"-"`
}

type Thread struct {
	Id              ThreadId           `json:"id"`
	Board           BoardName          `json:"board"`
	Subject         string             `json:"subject"`
	Name            string             `json:"name"`
	AvatarURL       string             `json:"avatarUrl"`
	Comment         string             `json:"comment"`
	Image           string             `json:"image"`
	Timestamp       string             `json:"timestamp"`
	Replies         map[ReplyId]*Reply `json:"replies"`
	RepliesDisabled bool               `json:"repliesDisabled"`

	Order uint64 `json:"-"`
}

type BoardThreads map[ThreadId]*Thread

// Document is the typed view of the shared room state.
type Document struct {
	Boards map[BoardName]BoardThreads `json:"boards"`
}

// HasBoard reports whether name is a key of Boards (an empty board counts).
func (d Document) HasBoard(name BoardName) bool {
	_, ok := d.Boards[name]
	return ok
}

// Thread looks up a thread by board and id.
func (d Document) Thread(board BoardName, id ThreadId) (*Thread, bool) {
	t, ok := d.Boards[board][id]
	return t, ok && t != nil
}

// ParseTimestamp parses an ISO-8601 timestamp. Unparsable values sort as the zero time.
func ParseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NewestFirst returns the board's threads ordered by timestamp descending.
// Equal timestamps keep insertion order.
func (b BoardThreads) NewestFirst() []*Thread {
	threads := make([]*Thread, 0, len(b))
	for _, t := range b {
		if t != nil {
			threads = append(threads, t)
		}
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].Order < threads[j].Order ||
			(threads[i].Order == threads[j].Order && threads[i].Id < threads[j].Id)
	})
	sort.SliceStable(threads, func(i, j int) bool {
		return ParseTimestamp(threads[i].Timestamp).After(ParseTimestamp(threads[j].Timestamp))
	})
	return threads
}

// RepliesOldestFirst returns the thread's replies ordered by timestamp ascending.
func (t *Thread) RepliesOldestFirst() []*Reply {
	replies := make([]*Reply, 0, len(t.Replies))
	for _, r := range t.Replies {
		if r != nil {
			replies = append(replies, r)
		}
	}
	sort.SliceStable(replies, func(i, j int) bool {
		return replies[i].Order < replies[j].Order ||
			(replies[i].Order == replies[j].Order && replies[i].Id < replies[j].Id)
	})
	sort.SliceStable(replies, func(i, j int) bool {
		return ParseTimestamp(replies[i].Timestamp).Before(ParseTimestamp(replies[j].Timestamp))
	})
	return replies
}

// ToRaw converts a typed value into the untyped shape stored by the room.
func ToRaw(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DecodeThread decodes one raw thread entry. Entries in a legacy shape fail to decode.
func DecodeThread(raw any) (*Thread, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var t Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if t.Replies == nil {
		t.Replies = map[ReplyId]*Reply{}
	}
	return &t, nil
}
