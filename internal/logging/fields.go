package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEntry is the standardized structured logging key for playlist entry paths.
	FieldEntry = "entry"
	// FieldSegmentIndex is the standardized structured logging key for segment positions.
	FieldSegmentIndex = "segment_index"
	// FieldEpisodeKey is the standardized structured logging key for episode identifiers (e.g. s01e02).
	FieldEpisodeKey = "episode_key"
	// FieldShow is the standardized structured logging key for show names.
	FieldShow = "show"
	// FieldBlockID is the standardized structured logging key for bumper block identifiers.
	FieldBlockID = "block_id"
	// FieldVersion is the standardized structured logging key for playlist versions.
	FieldVersion = "playlist_version"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator guidance.
	FieldErrorHint = "error_hint"
)
