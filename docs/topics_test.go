package docs

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/etnz/bankroll"
	"github.com/spf13/viper"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

func TestTopics(t *testing.T) {
	// Every topic listed in readme.md can be loaded, and every topic file is listed.
	desc, err := Describe()
	if err != nil {
		t.Fatalf("Describe() unexpected error: %v", err)
	}
	for topic, d := range desc {
		t.Run("load_"+topic, func(t *testing.T) {
			if _, err := GetTopic(topic); err != nil {
				t.Errorf("failed to get topic %q: %v", topic, err)
			}
			if d == "" {
				t.Errorf("topic %q has no description", topic)
			}
		})
	}

	topics, err := GetAllTopics()
	if err != nil {
		t.Fatal(err)
	}
	if len(topics) == 0 {
		t.Fatal("no topic embedded")
	}
	for _, topic := range topics {
		if _, ok := desc[topic]; !ok {
			t.Errorf("topic %q is not listed in readme.md", topic)
		}
	}

	all, err := GetTopic("*")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(all, "# Reconciliation") || strings.Contains(all, "Topics:") {
		t.Errorf("GetTopic(*) should concatenate every topic but the index")
	}
	if _, err := GetTopic("nope"); err == nil {
		t.Error("GetTopic(nope) should fail")
	}
}

// Block is a fenced code block of a topic.
type Block struct {
	Lang    string
	Content string
	Topic   string
}

// codeBlocks parses every topic and returns its fenced code blocks.
func codeBlocks(t *testing.T) []Block {
	t.Helper()
	topics, err := GetAllTopics()
	if err != nil {
		t.Fatal(err)
	}
	var blocks []Block
	for _, topic := range append(topics, Index) {
		content, err := docs.ReadFile(topic + ".md")
		if err != nil {
			t.Fatal(err)
		}
		root := goldmark.DefaultParser().Parse(text.NewReader(content))

		headings := 0
		ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			switch n := n.(type) {
			case *ast.Heading:
				if n.Level == 1 {
					headings++
				}
			case *ast.FencedCodeBlock:
				var b strings.Builder
				for i := 0; i < n.Lines().Len(); i++ {
					line := n.Lines().At(i)
					b.Write(line.Value(content))
				}
				blocks = append(blocks, Block{Lang: string(n.Language(content)), Content: b.String(), Topic: topic})
			}
			return ast.WalkContinue, nil
		})
		if headings != 1 {
			t.Errorf("topic %q has %d titles, want 1", topic, headings)
		}
	}
	return blocks
}

func TestSettingsBlocks(t *testing.T) {
	n := 0
	for _, b := range codeBlocks(t) {
		if b.Lang != "toml" {
			continue
		}
		n++
		v := viper.New()
		v.SetConfigType("toml")
		if err := v.ReadConfig(strings.NewReader(b.Content)); err != nil {
			t.Errorf("%s: invalid settings: %v", b.Topic, err)
			continue
		}
		if _, err := bankroll.ParseCostBasisMethod(v.GetString("reconcile.method")); err != nil {
			t.Errorf("%s: %v", b.Topic, err)
		}
		if _, err := bankroll.ParseOversellMode(v.GetString("reconcile.mode")); err != nil {
			t.Errorf("%s: %v", b.Topic, err)
		}
	}
	if n == 0 {
		t.Error("no settings example found")
	}
}

func TestJSONLBlocks(t *testing.T) {
	account := bankroll.Account{Broker: "vanguard", Number: "12345678"}
	n := 0
	for _, b := range codeBlocks(t) {
		if b.Lang != "jsonl" {
			continue
		}
		n++
		a := bankroll.JSONLAdapter{Name: "jsonl", Account: account, R: bytes.NewReader([]byte(b.Content))}
		var recs []bankroll.RawRecord
		for rec, err := range a.Records(context.Background()) {
			if err != nil {
				t.Fatalf("%s: %v", b.Topic, err)
			}
			recs = append(recs, rec)
		}
		_, _, rejected := bankroll.NewNormalizer(bankroll.DefaultConfig(), bankroll.NewResolver("USD")).NormalizeAll(recs)
		for _, r := range rejected {
			t.Errorf("%s: example rejected: %v", b.Topic, r.Err)
		}
	}
	if n == 0 {
		t.Error("no jsonl example found")
	}
}
