package parse

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// UnmarshalFirstYAMLBlock extracts the first fenced YAML block from a markdown
// document and decodes it into target. Models are often asked to answer with a
// YAML payload wrapped in prose, this strips the prose away.
func UnmarshalFirstYAMLBlock(markdownText string, target interface{}) error {
	blocks, err := ExtractYAMLBlocks(markdownText)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return errors.New("no YAML block found")
	}
	err = yaml.Unmarshal([]byte(blocks[0]), target)
	if err != nil {
		return errors.Wrap(err, "failed to unmarshal YAML block")
	}
	return nil
}
