package logs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
)

// LastLines returns up to limit trailing lines of the file at path. A missing
// file yields no lines and no error.
func LastLines(path string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ring := make([]string, limit)
	var total int
	for scanner.Scan() {
		ring[total%limit] = scanner.Text()
		total++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	count := min(total, limit)
	lines := make([]string, count)
	start := total - count
	for i := range count {
		lines[i] = ring[(start+i)%limit]
	}
	return lines, nil
}
