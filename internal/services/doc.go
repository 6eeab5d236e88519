// Package services carries the cross-component error taxonomy and context
// helpers shared by the playback loop, the bumper coordinator, and the
// control surface.
package services
