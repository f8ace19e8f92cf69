package layers

import "sort"

// ImageAttrs are the rendering attributes of an image layer.
type ImageAttrs struct {
	ZOrder int `json:"z_order"`
}

// AudioAttrs are the playback attributes of an audio track.
type AudioAttrs struct {
	Repeat bool    `json:"repeat"`
	Volume float64 `json:"volume"`
}

type (
	ImageStack = Stack[ImageAttrs]
	AudioStack = Stack[AudioAttrs]
	ImageEntry = Entry[ImageAttrs]
	AudioEntry = Entry[AudioAttrs]
)

// NewImageStack returns an empty image layer stack.
func NewImageStack() *ImageStack {
	return NewStack[ImageAttrs]("image")
}

// NewAudioStack returns an empty audio track stack.
func NewAudioStack() *AudioStack {
	return NewStack[AudioAttrs]("audio")
}

// ByZOrder returns a copy of entries in back-to-front drawing order.
// Layers sharing a z-order are drawn by ascending layer index.
func ByZOrder(entries []ImageEntry) []ImageEntry {
	out := CloneEntries(entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Attrs.ZOrder != out[j].Attrs.ZOrder {
			return out[i].Attrs.ZOrder < out[j].Attrs.ZOrder
		}
		return out[i].Index < out[j].Index
	})
	return out
}
