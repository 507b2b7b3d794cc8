package chat

import (
	"context"
	"testing"
	"time"
)

func TestLedger_CreatesLazilyWithChat(t *testing.T) {
	e := newTestEnv(t)
	inv := newInvestorID()
	chatID := newInvestorID()

	h, err := NewLedger(e.repo, e.cache).Record(context.Background(), inv, chatID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if h.ID == "" || !sameIDs(h.Chats, []string{chatID}) {
		t.Fatalf("unexpected ledger: %+v", h)
	}
	stored, err := e.repo.GetHistory(context.Background(), inv)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if stored.ID != h.ID || stored.Title != DefaultHistoryTitle {
		t.Fatalf("unexpected stored ledger: %+v", stored)
	}
	if m := e.historyMirror(t, inv); m == nil || m.ID != h.ID || !sameIDs(m.Chats, h.Chats) {
		t.Fatalf("history mirror not written: %+v", m)
	}
}

func TestLedger_InvalidChatIDSeedsEmpty(t *testing.T) {
	e := newTestEnv(t)
	h, err := NewLedger(e.repo, e.cache).Record(context.Background(), newInvestorID(), "bogus")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(h.Chats) != 0 {
		t.Fatalf("expected empty ledger, got %v", h.Chats)
	}
}

func TestLedger_SetSemantics(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := NewLedger(e.repo, e.cache)
	inv := newInvestorID()
	a, b := newInvestorID(), newInvestorID()

	for _, id := range []string{a, b, a, b} {
		if _, err := l.Record(ctx, inv, id); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	h, _ := l.Load(ctx, inv)
	if !sameIDs(h.Chats, []string{a, b}) {
		t.Fatalf("expected [a b], got %v", h.Chats)
	}
}

func TestLedger_CapsAtHundred(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := NewLedger(e.repo, e.cache)
	inv := newInvestorID()

	var ids []string
	var h *HistoryMirror
	for i := 0; i < 150; i++ {
		id := newInvestorID()
		ids = append(ids, id)
		var err error
		if h, err = l.Record(ctx, inv, id); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if !sameIDs(h.Chats, ids[50:]) {
		t.Fatalf("expected the 100 newest ids, got %d ids", len(h.Chats))
	}
	stored, _ := e.repo.GetHistory(ctx, inv)
	if !sameIDs(stored.Chats, ids[50:]) {
		t.Fatalf("trimmed list not persisted, store has %d ids", len(stored.Chats))
	}
}

func TestLedger_OverflowByOneEvictsOldest(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	inv := newInvestorID()

	seed := make([]string, 101)
	for i := range seed {
		seed[i] = newInvestorID()
	}
	if err := e.repo.CreateHistory(ctx, &History{InvestorID: inv, Chats: seed}); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	added := newInvestorID()
	h, err := NewLedger(e.repo, e.cache).Record(ctx, inv, added)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(h.Chats) != MaxHistoryChats {
		t.Fatalf("expected %d, got %d", MaxHistoryChats, len(h.Chats))
	}
	if h.Chats[len(h.Chats)-1] != added {
		t.Fatalf("new id must be last")
	}
	if containsID(h.Chats, seed[0]) {
		t.Fatalf("oldest id must be evicted")
	}
}

func TestLedger_RefreshesTTLWithoutChange(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := NewLedger(e.repo, e.cache)
	inv := newInvestorID()
	chatID := newInvestorID()

	if _, err := l.Record(ctx, inv, chatID); err != nil {
		t.Fatalf("record: %v", err)
	}
	e.mr.FastForward(time.Hour)
	if ttl := e.mr.TTL(HistoryKey(inv)); ttl != MirrorTTL-time.Hour {
		t.Fatalf("unexpected ttl after fast forward %v", ttl)
	}
	if _, err := l.Record(ctx, inv, chatID); err != nil {
		t.Fatalf("record again: %v", err)
	}
	if ttl := e.mr.TTL(HistoryKey(inv)); ttl != MirrorTTL {
		t.Fatalf("ttl not refreshed: %v", ttl)
	}
}

func TestLedger_StoreWinsOverMirror(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	l := NewLedger(e.repo, e.cache)
	inv := newInvestorID()
	kept := newInvestorID()

	if _, err := l.Record(ctx, inv, kept); err != nil {
		t.Fatalf("record: %v", err)
	}
	e.putMirror(t, HistoryKey(inv), HistoryMirror{ID: "someone-else", Chats: []string{"x", "y"}})

	h, err := l.Record(ctx, inv, "")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !sameIDs(h.Chats, []string{kept}) {
		t.Fatalf("store must win, got %v", h.Chats)
	}
	if m := e.historyMirror(t, inv); m == nil || m.ID != h.ID {
		t.Fatalf("mirror not repaired: %+v", m)
	}
}

func TestLedger_MissingStoreRecordEvictsMirror(t *testing.T) {
	e := newTestEnv(t)
	inv := newInvestorID()
	e.putMirror(t, HistoryKey(inv), HistoryMirror{ID: newInvestorID(), Chats: []string{newInvestorID()}})

	if _, err := NewLedger(e.repo, e.cache).Load(context.Background(), inv); err != ErrHistoryNotFound {
		t.Fatalf("expected ErrHistoryNotFound, got %v", err)
	}
	if e.mr.Exists(HistoryKey(inv)) {
		t.Fatalf("stale history mirror must be deleted")
	}
}

func TestLedger_MalformedChatsTreatedAsEmpty(t *testing.T) {
	e := newTestEnv(t)
	inv := newInvestorID()
	if err := e.mr.Set(HistoryKey(inv), `{"_id":"abc","chats":"oops"}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h, err := NewLedger(e.repo, e.cache).Peek(context.Background(), inv)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if h.ID != "abc" || len(h.Chats) != 0 {
		t.Fatalf("unexpected mirror: %+v", h)
	}
}
