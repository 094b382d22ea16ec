package ui

import (
	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/tasks"
)

// MsgType enumerates the messages the model reacts to.
type MsgType int

const (
	MsgTrendingFetched MsgType = iota
	MsgListFetched
	MsgCountFetched
	MsgListChanged
	MsgIdentityChanged
	MsgToggled
	MsgRated
	MsgRemoved
)

// Msg is a message union for the bubbletea update loop.
type Msg struct {
	kind MsgType
	data any
}

type trendingData struct {
	items []models.ReconciledMedia
	err   error
}

type listData struct {
	kind    models.ListKind
	entries []models.ListEntry
	err     error
}

type countData struct {
	count int
	err   error
}

type toggleData struct {
	kind  models.ListKind
	media models.Media
	on    bool
	err   error
}

type ratedData struct {
	media  models.Media
	rating float64
	result *tasks.PromotionResult
	err    error
}

type removedData struct {
	kind    models.ListKind
	media   models.Media
	removed bool
	err     error
}

// trendingFetchedMsg is the constructor for [MsgTrendingFetched]
func trendingFetchedMsg(items []models.ReconciledMedia, err error) Msg {
	return Msg{kind: MsgTrendingFetched, data: trendingData{items, err}}
}

// listFetchedMsg is the constructor for [MsgListFetched]
func listFetchedMsg(kind models.ListKind, entries []models.ListEntry, err error) Msg {
	return Msg{kind: MsgListFetched, data: listData{kind, entries, err}}
}

// countFetchedMsg is the constructor for [MsgCountFetched]
func countFetchedMsg(count int, err error) Msg {
	return Msg{kind: MsgCountFetched, data: countData{count, err}}
}

// listChangedMsg is the constructor for [MsgListChanged]
func listChangedMsg(ev models.ChangeEvent) Msg {
	return Msg{kind: MsgListChanged, data: ev}
}

// identityChangedMsg is the constructor for [MsgIdentityChanged]
func identityChangedMsg(id models.Identity) Msg {
	return Msg{kind: MsgIdentityChanged, data: id}
}

// toggledMsg is the constructor for [MsgToggled]
func toggledMsg(kind models.ListKind, media models.Media, on bool, err error) Msg {
	return Msg{kind: MsgToggled, data: toggleData{kind, media, on, err}}
}

// ratedMsg is the constructor for [MsgRated]
func ratedMsg(media models.Media, rating float64, result *tasks.PromotionResult, err error) Msg {
	return Msg{kind: MsgRated, data: ratedData{media, rating, result, err}}
}

// removedMsg is the constructor for [MsgRemoved]
func removedMsg(kind models.ListKind, media models.Media, removed bool, err error) Msg {
	return Msg{kind: MsgRemoved, data: removedData{kind, media, removed, err}}
}
