package audit

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadShard replays all events from a single shard file, transparently
// decompressing gzip shards.
func ReadShard(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip shard: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read shard: %w", err)
	}
	return events, nil
}

// ReadDir replays every event under baseDir in shard order without
// opening a trail for writing.
func ReadDir(baseDir string) ([]Event, error) {
	shards, err := ListShards(baseDir)
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, shard := range shards {
		events, err := ReadShard(shard)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	return all, nil
}
