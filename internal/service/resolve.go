package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/registry"
)

// NoTermID marks a Ref without a term id.
const NoTermID = -1

// Ref points at one entry. With a TermID the entry is fetched directly;
// otherwise Term is looked up by prefix search.
type Ref struct {
	DictID string
	Term   string
	TermID int
}

// ByTerm is a Ref without a term id.
func ByTerm(dictID, term string) Ref {
	return Ref{DictID: dictID, Term: term, TermID: NoTermID}
}

// ByID is a Ref with a term id.
func ByID(dictID, term string, termID int) Ref {
	return Ref{DictID: dictID, Term: term, TermID: termID}
}

// Resolve returns the content of ref. A miss is dict.ErrNotFound.
//
// Without a term id the first hit whose key equals the term exactly wins,
// else the first hit no longer than the term. The chosen id is cached per
// dictionary until the registry reloads.
func (s *Service) Resolve(ctx context.Context, ref Ref) (dict.DictEntryContent, error) {
	if err := s.acquire(ctx); err != nil {
		return dict.DictEntryContent{}, err
	}
	defer s.release()

	src, ok := s.src.Get(ref.DictID)
	if !ok {
		return dict.DictEntryContent{}, fmt.Errorf("dictionary %s: %w", ref.DictID, dict.ErrNotFound)
	}
	if ref.TermID >= 0 {
		c, err := fetch(src, ref.TermID)
		s.metrics.ObserveResolve("id", err == nil)
		return c, err
	}
	if ref.Term == "" {
		return dict.DictEntryContent{}, dict.ErrNotFound
	}

	key := termKey{dictID: src.ID, term: ref.Term}
	if id, ok := s.terms.Get(key); ok {
		if c, err := fetch(src, id); err == nil {
			s.metrics.ObserveResolve("term", true)
			return c, nil
		}
	}
	b, err := closest(ctx, src.Handle, ref.Term)
	s.metrics.ObserveResolve("term", err == nil)
	if err != nil {
		return dict.DictEntryContent{}, err
	}
	s.terms.Set(key, b.ID)
	return content(src, b), nil
}

func fetch(src registry.Live, id int) (dict.DictEntryContent, error) {
	b, err := src.Handle.GetByID(id)
	if err != nil {
		return dict.DictEntryContent{}, err
	}
	return content(src, b), nil
}

func content(src registry.Live, b dict.Blob) dict.DictEntryContent {
	return dict.DictEntryContent{
		DictEntry: dict.DictEntry{
			DictID:   src.ID,
			DictName: src.DisplayName,
			TermID:   b.ID,
			Term:     b.Key,
		},
		ContentType: b.ContentType,
		Content:     b.Content,
	}
}

// closest applies the exact-then-not-longer rule to the prefix hits of term.
// Hits are ordered by folded key, so once a fallback is known and the folded
// keys move past the term no exact match can follow.
func closest(ctx context.Context, h dict.Handle, term string) (dict.Blob, error) {
	var (
		exact, fallback *dict.Blob
		cancelled       bool
	)
	folded := dict.Fold(term)
	n := utf8.RuneCountInString(term)
	err := h.FindPrefix(term, func(_ int, b dict.Blob) bool {
		if ctx.Err() != nil {
			cancelled = true
			return false
		}
		if b.Key == term {
			exact = &b
			return false
		}
		if fallback == nil && utf8.RuneCountInString(b.Key) <= n {
			fallback = &b
		}
		return fallback == nil || dict.Fold(b.Key) == folded
	})
	switch {
	case cancelled:
		return dict.Blob{}, ctx.Err()
	case err != nil:
		return dict.Blob{}, err
	case exact != nil:
		return *exact, nil
	case fallback != nil:
		return *fallback, nil
	}
	return dict.Blob{}, dict.ErrNotFound
}
