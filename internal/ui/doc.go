// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI shows three tabs:
//  1. [TrendingTab] : today's trending titles, badged with the viewer's list membership
//  2. [ToWatchTab] : the viewer's to-watch list
//  3. [WatchedTab] : the viewer's watched list with ratings
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving results via the Msg union type.
// List mutations go through the same workflows as the CLI and server (toggle, rate and remove), and a title with
// a change in flight cannot be submitted again until the first one settles. Changes published on the list feed
// refresh the affected tab and the to-watch counter in the header.
//
// Keyboard navigation uses vim-style bindings with contextual help displayed via charmbracelet/bubbles/help.
package ui
