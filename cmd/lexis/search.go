package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/k3a/html2text"
	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/service"
)

var dictionaryFlag = &cli.StringSliceFlag{
	Name:    "dictionary",
	Aliases: []string{"d"},
	Usage:   "only use dictionary `NAME` (id, file name or label; repeat or comma-separate)",
}

var limitFlag = &cli.IntFlag{
	Name:    "limit",
	Aliases: []string{"n"},
	Usage:   "return at most `N` matches (default from config)",
}

var searchCommand = &cli.Command{
	Name:      "search",
	Usage:     "list headwords starting with TERM",
	ArgsUsage: "TERM",
	Flags:     []cli.Flag{dictionaryFlag, limitFlag},
	Action: func(c *cli.Context) error {
		term := c.Args().First()
		if term == "" {
			return cli.Exit("search: missing TERM", ExitUsage)
		}
		a, err := openApp(c)
		if err != nil {
			return err
		}
		defer a.Close()

		res := a.Service.Search(c.Context, service.Query{
			Text:         term,
			Limit:        c.Int("limit"),
			Dictionaries: c.StringSlice("dictionary"),
		})
		if len(res.Entries) == 0 {
			return cli.Exit(fmt.Sprintf("no matches for %q", term), ExitNoMatch)
		}
		tbl := table.New("Term", "Dictionary").WithWriter(c.App.Writer)
		for _, e := range res.Entries {
			tbl.AddRow(e.Term, e.DictName)
		}
		tbl.Print()
		return nil
	},
}

var lookupCommand = &cli.Command{
	Name:      "lookup",
	Usage:     "print the definitions of TERM",
	ArgsUsage: "TERM",
	Description: "Searches for --search (default TERM) and prints every hit whose\n" +
		"headword matches TERM ignoring case. Dictionaries without such a hit\n" +
		"are asked for their closest headword instead.",
	Flags: []cli.Flag{
		dictionaryFlag,
		limitFlag,
		&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "search for `TEXT` instead of TERM"},
		&cli.BoolFlag{Name: "raw", Usage: "print rich content without converting it to text"},
		&cli.BoolFlag{Name: "brief", Usage: "drop the headword from the start of each definition"},
	},
	Action: func(c *cli.Context) error {
		term := c.Args().First()
		if term == "" {
			return cli.Exit("lookup: missing TERM", ExitUsage)
		}
		a, err := openApp(c)
		if err != nil {
			return err
		}
		defer a.Close()

		query := c.String("search")
		if query == "" {
			query = term
		}
		dicts := c.StringSlice("dictionary")
		res := a.Service.Search(c.Context, service.Query{Text: query, Limit: c.Int("limit"), Dictionaries: dicts})

		folded := dict.Fold(term)
		var refs []service.Ref
		for _, e := range res.Entries {
			if dict.Fold(e.Term) == folded {
				refs = append(refs, service.ByID(e.DictID, e.Term, e.TermID))
			}
		}
		if len(refs) == 0 {
			for _, src := range a.Service.Select(dicts) {
				refs = append(refs, service.ByTerm(src.ID, term))
			}
		}

		printed := 0
		for _, ref := range refs {
			content, err := a.Service.Resolve(c.Context, ref)
			if errors.Is(err, dict.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if printed > 0 {
				fmt.Fprintln(c.App.Writer)
			}
			fmt.Fprintf(c.App.Writer, "== %s: %s ==\n", content.DictName, content.Term)
			fmt.Fprintln(c.App.Writer, render(content, c.Bool("raw"), c.Bool("brief")))
			printed++
		}
		if printed == 0 {
			return cli.Exit(fmt.Sprintf("no definition for %q", term), ExitNoMatch)
		}
		return nil
	},
}

// render turns resolved content into terminal text.
func render(c dict.DictEntryContent, raw, brief bool) string {
	var text string
	switch c.Kind() {
	case dict.Rich:
		text = string(c.Content)
		if !raw {
			text = html2text.HTML2TextWithOptions(text, html2text.WithUnixLineBreaks())
		}
	case dict.Text:
		text = string(c.Content)
	default:
		return fmt.Sprintf("[%s, %d bytes]", c.ContentType, len(c.Content))
	}
	if brief {
		text = stripHeadword(text, c.Term)
	}
	return strings.TrimSpace(text)
}

// stripHeadword removes a leading copy of word and the punctuation after it.
func stripHeadword(text, word string) string {
	text = strings.TrimSpace(text)
	if word == "" || !strings.HasPrefix(text, word) {
		return text
	}
	rest := strings.TrimLeft(text[len(word):], " \t\n.,:;?!-\u2014")
	if rest == "" {
		return text
	}
	return rest
}
