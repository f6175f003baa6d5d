// Command genconfig renders config.default.toml from config.ExampleConfig,
// commenting each key with its entry in config.Docs.
//
// go generate runs it from internal/config, so the default output path
// climbs back to the module root where configdata.go embeds the file.
// With -check it only reports whether the file on disk is current.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/powerhook/internal/atomicfile"
	"tools.zach/dev/powerhook/internal/config"
)

const rule = "# ///////////////////////////////////////////////"

func main() {
	out := flag.String("o", "../../config.default.toml", "output file")
	check := flag.Bool("check", false, "fail if the output file is out of date instead of writing it")
	flag.Parse()

	if err := run(*out, *check); err != nil {
		fmt.Fprintln(os.Stderr, "genconfig:", err)
		os.Exit(1)
	}
}

func run(path string, check bool) error {
	text, err := render(config.ExampleConfig(), config.Docs)
	if err != nil {
		return err
	}
	if check {
		cur, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if !bytes.Equal(cur, []byte(text)) {
			return fmt.Errorf("%s is stale, run go generate ./internal/config", path)
		}
		return nil
	}
	if err := atomicfile.Write(path, []byte(text), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

// render encodes v as TOML and interleaves the comments from docs.
func render(v any, docs map[string]config.Doc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(v); err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}

	a := &annotator{docs: docs, seen: map[string]bool{}}
	a.out = append(a.out, rule, "# powerhook Configuration", rule, "")
	for line := range strings.SplitSeq(raw.String(), "\n") {
		a.line(strings.TrimSpace(line))
	}
	a.undocumented()

	return strings.TrimRight(strings.Join(a.out, "\n"), "\n") + "\n", nil
}

// ///////////////////////////////////////////////
// Annotator
// ///////////////////////////////////////////////

// annotator walks encoder output line by line, tracking the current table.
type annotator struct {
	docs    map[string]config.Doc
	out     []string
	section string
	// seen holds the dotted paths already written, so fields the encoder
	// left out (omitempty, omitzero) can still be shown as comments.
	seen map[string]bool
}

func (a *annotator) line(l string) {
	switch {
	case l == "":
	case strings.HasPrefix(l, "[") && !strings.HasPrefix(l, "[["):
		a.table(strings.Trim(l, "[] "), l)
	case strings.HasPrefix(l, "#") || !strings.Contains(l, "="):
		a.out = append(a.out, l)
	default:
		a.key(l)
	}
}

func (a *annotator) table(name, header string) {
	a.undocumented()
	a.section = name
	a.out = append(a.out, "", "# ///// "+title(name)+" /////", "")
	a.comment(a.docs[name].Text)
	a.out = append(a.out, header)
}

func (a *annotator) key(l string) {
	k, _, _ := strings.Cut(l, "=")
	p := a.path(strings.TrimSpace(k))
	a.seen[p] = true

	doc := a.docs[p]
	a.comment(doc.Text)
	a.out = append(a.out, l)
	a.examples(doc.Examples)
}

// undocumented writes commented entries for keys of the current table that
// the encoder omitted, in sorted order.
func (a *annotator) undocumented() {
	if a.section == "" {
		return
	}
	prefix := a.section + "."
	var keys []string
	for p := range a.docs {
		rest, ok := strings.CutPrefix(p, prefix)
		if ok && !strings.Contains(rest, ".") && !a.seen[p] {
			keys = append(keys, p)
		}
	}
	slices.Sort(keys)

	for _, p := range keys {
		a.out = append(a.out, "")
		a.comment(a.docs[p].Text)
		a.examples(a.docs[p].Examples)
		a.seen[p] = true
	}
}

func (a *annotator) path(key string) string {
	if a.section == "" {
		return key
	}
	return a.section + "." + key
}

func (a *annotator) comment(text string) {
	if text == "" {
		return
	}
	for l := range strings.SplitSeq(text, "\n") {
		a.out = append(a.out, "# "+l)
	}
}

func (a *annotator) examples(ex []string) {
	for _, e := range ex {
		a.out = append(a.out, "# "+e)
	}
}

// title is the last segment of a dotted table name with its first letter
// upper-cased: "hooks.linux" becomes "Linux".
func title(section string) string {
	last := section[strings.LastIndex(section, ".")+1:]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
