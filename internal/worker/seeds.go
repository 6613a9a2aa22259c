package worker

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Seed is an initial listing URL, optionally pinned to a source
type Seed struct {
	SourceID string
	URL      string
}

// ReadSeedsFromFile reads seeds, one per line, as "url" or "source-id url".
// Blank lines and # comments are skipped; duplicates are dropped.
func ReadSeedsFromFile(filePath string) ([]Seed, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var seeds []Seed
	seen := make(map[Seed]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var seed Seed
		switch fields := strings.Fields(line); len(fields) {
		case 1:
			seed = Seed{URL: fields[0]}
		case 2:
			seed = Seed{SourceID: fields[0], URL: fields[1]}
		default:
			return nil, fmt.Errorf("line %d: expected \"url\" or \"source-id url\"", lineNo)
		}

		if !seen[seed] {
			seen[seed] = true
			seeds = append(seeds, seed)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return seeds, nil
}
