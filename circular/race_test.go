//go:build race

package circular

const raceEnabled = true
