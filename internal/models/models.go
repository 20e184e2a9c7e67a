package models

// Canvas dimensions every generated game is laid out against.
const (
	CanvasWidth  = 800
	CanvasHeight = 600
)

// Contracts are the element ids the generated markup must define and the
// generated script must look up.
type Contracts struct {
	CanvasID    string `json:"canvas_id" yaml:"canvas_id"`
	ScoreID     string `json:"score_id" yaml:"score_id"`
	TimerID     string `json:"timer_id" yaml:"timer_id"`
	ContainerID string `json:"container_id" yaml:"container_id"`
}

// DefaultContracts returns the ids the prompts ask the model to use.
func DefaultContracts() Contracts {
	return Contracts{
		CanvasID:    "gameCanvas",
		ScoreID:     "score",
		TimerID:     "timer",
		ContainerID: "gameContainer",
	}
}

// Player describes where the player starts and how it moves.
type Player struct {
	StartX float64 `json:"startX" yaml:"start_x"`
	StartY float64 `json:"startY" yaml:"start_y"`
	Size   float64 `json:"size" yaml:"size"`
	Speed  float64 `json:"speed" yaml:"speed"`
}

// Obstacle is a solid rectangle taken from an object in the photo.
type Obstacle struct {
	Name   string  `json:"name" yaml:"name"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Color  string  `json:"color" yaml:"color"`
}

func (o Obstacle) Rect() Rect {
	return Rect{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height}
}

// Collectible is an item the player picks up. X and Y are its center.
type Collectible struct {
	Name      string  `json:"name" yaml:"name"`
	X         float64 `json:"x" yaml:"x"`
	Y         float64 `json:"y" yaml:"y"`
	Size      float64 `json:"size" yaml:"size"`
	Color     string  `json:"color" yaml:"color"`
	Collected bool    `json:"collected,omitempty" yaml:"collected,omitempty"`
}

// Goal is the area the player must reach once everything is collected.
type Goal struct {
	Name   string  `json:"name" yaml:"name"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

func (g Goal) Rect() Rect {
	return Rect{X: g.X, Y: g.Y, Width: g.Width, Height: g.Height}
}

// GameSpec is the structured description every code artifact is generated from.
type GameSpec struct {
	Title        string        `json:"title" yaml:"title"`
	Theme        string        `json:"theme" yaml:"theme"`
	Contracts    Contracts     `json:"contracts" yaml:"contracts"`
	Player       Player        `json:"player" yaml:"player"`
	Obstacles    []Obstacle    `json:"obstacles" yaml:"obstacles"`
	Collectibles []Collectible `json:"collectibles" yaml:"collectibles"`
	Goal         Goal          `json:"goal" yaml:"goal"`
}

// DefaultSpec is used when the model's specification cannot be parsed.
func DefaultSpec() *GameSpec {
	return &GameSpec{
		Title:     "Photo Adventure",
		Theme:     "Navigate the scene",
		Contracts: DefaultContracts(),
		Player:    Player{StartX: 50, StartY: 500, Size: 25, Speed: 4},
		Obstacles: []Obstacle{
			{Name: "Obstacle", X: 300, Y: 300, Width: 150, Height: 100, Color: "#8B4513"},
		},
		Collectibles: []Collectible{
			{Name: "Item", X: 400, Y: 200, Size: 15, Color: "#FFD700"},
		},
		Goal: Goal{Name: "Goal", X: 700, Y: 50, Width: 60, Height: 60},
	}
}

// Normalize fills in the fields later stages cannot do without.
func (s *GameSpec) Normalize() {
	def := DefaultContracts()
	if s.Contracts.CanvasID == "" {
		s.Contracts.CanvasID = def.CanvasID
	}
	if s.Contracts.ScoreID == "" {
		s.Contracts.ScoreID = def.ScoreID
	}
	if s.Contracts.TimerID == "" {
		s.Contracts.TimerID = def.TimerID
	}
	if s.Contracts.ContainerID == "" {
		s.Contracts.ContainerID = def.ContainerID
	}
	if s.Title == "" {
		s.Title = "Photo Game"
	}
}

// Clone returns a deep copy so a repair can be discarded without touching the original.
func (s *GameSpec) Clone() *GameSpec {
	c := *s
	c.Obstacles = append([]Obstacle(nil), s.Obstacles...)
	c.Collectibles = append([]Collectible(nil), s.Collectibles...)
	return &c
}
