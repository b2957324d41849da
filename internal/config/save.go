package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// SaveChannels replaces the channels list in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveChannels(configPath string, channels []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	setTopLevel(&doc, "channels", buildChannelsNode(channels))

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// AddChannel appends slug to existing and saves the list. Adding a channel
// that is already listed leaves the file untouched.
func AddChannel(configPath, slug string, existing []string) error {
	if slices.Contains(existing, slug) {
		return nil
	}
	channels := append(slices.Clone(existing), slug)
	if err := ValidateChannels(channels); err != nil {
		return err
	}
	return SaveChannels(configPath, channels)
}

// RemoveChannel drops slug from existing and saves the list.
func RemoveChannel(configPath, slug string, existing []string) error {
	idx := slices.Index(existing, slug)
	if idx < 0 {
		return fmt.Errorf("channel %q is not configured", slug)
	}
	return SaveChannels(configPath, slices.Delete(slices.Clone(existing), idx, idx+1))
}

func buildChannelsNode(channels []string) *yaml.Node {
	node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, slug := range channels {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: slug})
	}
	return node
}

// setTopLevel replaces key in the root mapping of doc, appending it if absent.
func setTopLevel(doc *yaml.Node, key string, value *yaml.Node) {
	if doc.Kind == 0 || len(doc.Content) == 0 {
		*doc = yaml.Node{
			Kind: yaml.DocumentNode,
			Content: []*yaml.Node{{
				Kind: yaml.MappingNode,
				Content: []*yaml.Node{
					{Kind: yaml.ScalarNode, Value: key},
					value,
				},
			}},
		}
		return
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i < len(root.Content)-1; i += 2 {
		if root.Content[i].Value == key {
			root.Content[i+1] = value
			return
		}
	}
	root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, value)
}

// writeAtomic writes to a temp file in the same directory, then renames.
func writeAtomic(configPath string, data []byte) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".huddle.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
