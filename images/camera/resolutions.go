// Package camera describes capture devices and the modes they can be asked
// for. It has no OpenCV dependency so configuration can be validated without it.
package camera

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Config selects the camera or video file to read.
type Config struct {
	// Device is the camera index, used when Video is empty.
	Device int `yaml:"device" json:"device"`
	// Video is a file path or stream URL.
	Video string `yaml:"video" json:"video"`
	// Resolution asks the camera for a capture mode, e.g. "720p". Ignored for files.
	Resolution string `yaml:"resolution" json:"resolution"`
	// Loop rewinds a video file when it ends.
	Loop bool `yaml:"loop" json:"loop"`
}

// Resolution is a capture size a camera can be asked for.
type Resolution struct {
	Alias  string `json:"alias"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MegaPixels returns the pixel count in millions, rounded to two decimals.
func (r Resolution) MegaPixels() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	mp := float64(r.Width*r.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Alias, r.Width, r.Height, r.MegaPixels())
}

// resolutions holds the common webcam and classroom camera capture modes.
var resolutions = map[string]Resolution{
	"vga":   {Alias: "vga", Width: 640, Height: 480},
	"480p":  {Alias: "480p", Width: 854, Height: 480},
	"540p":  {Alias: "540p", Width: 960, Height: 540},
	"720p":  {Alias: "720p", Width: 1280, Height: 720},
	"1080p": {Alias: "1080p", Width: 1920, Height: 1080},
	"1440p": {Alias: "1440p", Width: 2560, Height: 1440},
	"4k":    {Alias: "4k", Width: 3840, Height: 2160},
}

// Lookup finds a resolution by alias, case-insensitively.
func Lookup(alias string) (Resolution, bool) {
	r, ok := resolutions[strings.ToLower(alias)]
	return r, ok
}

// Resolutions returns every known resolution, smallest first.
func Resolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, r := range resolutions {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Width*all[i].Height < all[j].Width*all[j].Height
	})
	return all
}

// HighestUnder returns the largest resolution fitting inside width x height.
func HighestUnder(width, height int) (Resolution, bool) {
	var (
		best  Resolution
		found bool
	)
	for _, r := range Resolutions() {
		if r.Width <= width && r.Height <= height {
			best, found = r, true
		}
	}
	return best, found
}
