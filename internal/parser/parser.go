package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/takak2166/expo2joplin/internal/logger"
	"github.com/takak2166/expo2joplin/internal/models"
)

// Parser loads the expo dump and the host allow-list
type Parser struct {
	records []models.HostRecord
	hosts   []string
	allowed map[string]struct{}
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{
		allowed: make(map[string]struct{}),
	}
}

// ParseFile reads and parses an expo dump file (a JSON array of host objects)
func (p *Parser) ParseFile(filepath string) error {
	logger.Debug("Reading expo dump file", map[string]interface{}{
		"filepath": filepath,
	})

	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	records, err := Decode(data)
	if err != nil {
		return err
	}
	p.records = records

	logger.Info("Successfully parsed expo dump file", map[string]interface{}{
		"hosts_count": len(p.records),
	})

	return nil
}

// Decode parses dump bytes into host records, keeping each element's raw bytes
func Decode(data []byte) ([]models.HostRecord, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if elements == nil {
		return nil, fmt.Errorf("failed to parse JSON: top level is not an array")
	}

	records := make([]models.HostRecord, 0, len(elements))
	for i, raw := range elements {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var fields map[string]interface{}
		if err := dec.Decode(&fields); err != nil {
			return nil, fmt.Errorf("failed to parse host record %d: %w", i, err)
		}
		if fields == nil {
			return nil, fmt.Errorf("failed to parse host record %d: not an object", i)
		}

		records = append(records, models.HostRecord{
			Fields: fields,
			Raw:    raw,
		})
	}

	return records, nil
}

// ParseHostsFile reads the allow-list: one host id per line, surrounding
// whitespace trimmed, blank lines ignored
func (p *Parser) ParseHostsFile(filepath string) error {
	logger.Debug("Reading hosts file", map[string]interface{}{
		"filepath": filepath,
	})

	f, err := os.Open(filepath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		host := strings.TrimSpace(scanner.Text())
		if host == "" {
			continue
		}
		if _, dup := p.allowed[host]; dup {
			continue
		}
		p.allowed[host] = struct{}{}
		p.hosts = append(p.hosts, host)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read hosts: %w", err)
	}

	logger.Info("Successfully parsed hosts file", map[string]interface{}{
		"hosts_count": len(p.hosts),
	})

	return nil
}

// GetRecords returns all host records from the parsed dump in dump order
func (p *Parser) GetRecords() []models.HostRecord {
	return p.records
}

// GetHosts returns the allow-listed host ids in file order
func (p *Parser) GetHosts() []string {
	return p.hosts
}

// IsAllowed reports whether the host id is on the allow-list
func (p *Parser) IsAllowed(expoID string) bool {
	_, ok := p.allowed[expoID]
	return ok
}
