package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"rerun/internal/api"
)

// nowPlayingMarker flags the segment the encoder is on right now.
const nowPlayingMarker = "▶"

// segmentTable renders the snapshot, current segment first, as the table
// shown by `rerun playlist show`.
func segmentTable(snapshot api.Snapshot) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"", "Show", "Episode", "Entry", "Bumpers"})

	addSegment := func(marker string, view api.SegmentView) {
		tw.AppendRow(table.Row{
			marker,
			view.Show,
			view.EpisodeCode,
			view.EpisodePath,
			strconv.Itoa(len(view.Bumpers)),
		})
	}
	if snapshot.Current != nil {
		addSegment(nowPlayingMarker, *snapshot.Current)
	}
	for _, view := range snapshot.Upcoming {
		addSegment("", view)
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
