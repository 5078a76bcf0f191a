// Package transcript assembles recognition segments into an ordered
// transcript of finalized lines plus at most one pending line that is
// rewritten as recognition of the current phrase improves.
package transcript
