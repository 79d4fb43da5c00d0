package event

// KeyPressed is emitted by the terminal for every key event.
type KeyPressed struct {
	Rune rune   // 0 for non-character keys
	Name string // tcell key name, e.g. "Enter", "Rune[a]"
}

type Resized struct {
	Width  int
	Height int
}

// QuitRequested asks the frame loop to stop after the current frame.
type QuitRequested struct {
	Source string
}
