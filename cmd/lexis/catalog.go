package main

import (
	"fmt"
	"strconv"

	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"
	"sigs.k8s.io/release-utils/version"

	"github.com/sagerenn/lexis/internal/catalog"
)

var catalogCommand = &cli.Command{
	Name:  "catalog",
	Usage: "browse catalogs of downloadable dictionaries",
	Subcommands: []*cli.Command{
		{
			Name:      "load",
			Usage:     "load a catalog and summarise it",
			ArgsUsage: "SOURCE",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "refresh", Aliases: []string{"r"}, Usage: "bypass the cache"},
			},
			Action: func(c *cli.Context) error {
				return withCatalog(c, func(m *catalog.Manager, cat *catalog.Catalog) error {
					fmt.Fprintf(c.App.Writer, "%s: %s catalog v%d, %d dictionaries, languages %v\n",
						cat.Source, cat.Type, cat.Version, len(cat.Dictionaries), cat.Languages())
					return nil
				})
			},
		},
		{
			Name:      "list",
			Usage:     "list the dictionaries of a catalog",
			ArgsUsage: "SOURCE",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "lang", Aliases: []string{"l"}, Usage: "only language `LANG`"},
				&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "only `TYPE` (Monolingual, Bilingual, Thesaurus)"},
			},
			Action: func(c *cli.Context) error {
				return withCatalog(c, func(m *catalog.Manager, _ *catalog.Catalog) error {
					entries := m.Dictionaries()
					switch {
					case c.String("lang") != "":
						entries = m.ByLanguage(c.String("lang"))
					case c.String("type") != "":
						entries = m.ByType(c.String("type"))
					}
					if t := c.String("type"); t != "" && c.String("lang") != "" {
						entries = filterType(entries, t)
					}
					tbl := table.New("ID", "Name", "Lang", "Type", "Version", "Size", "URL").WithWriter(c.App.Writer)
					for _, e := range entries {
						d := e.Dictionary
						tbl.AddRow(d.ID, d.Name, d.Lang, d.Type, d.Version, strconv.FormatInt(d.Size, 10), d.URL)
					}
					tbl.Print()
					return nil
				})
			},
		},
		{
			Name:      "languages",
			Usage:     "list the languages of a catalog",
			ArgsUsage: "SOURCE",
			Action: func(c *cli.Context) error {
				return withCatalog(c, func(m *catalog.Manager, _ *catalog.Catalog) error {
					for _, l := range m.Languages() {
						fmt.Fprintln(c.App.Writer, l)
					}
					return nil
				})
			},
		},
		{
			Name:      "export",
			Usage:     "write a catalog as native JSON",
			ArgsUsage: "SOURCE OUTPUT",
			Action: func(c *cli.Context) error {
				out := c.Args().Get(1)
				if out == "" {
					return cli.Exit("catalog export: missing OUTPUT", ExitUsage)
				}
				return withCatalog(c, func(m *catalog.Manager, cat *catalog.Catalog) error {
					if err := m.Export(cat.Source, out); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "exported %d dictionaries to %s\n", len(cat.Dictionaries), out)
					return nil
				})
			},
		},
		{
			Name:      "clear-cache",
			Usage:     "drop cached remote catalogs (all of them without SOURCE)",
			ArgsUsage: "[SOURCE]",
			Action: func(c *cli.Context) error {
				m, err := newCatalogManager(c)
				if err != nil {
					return err
				}
				return m.ClearCache(c.Args().First())
			},
		},
	},
}

func newCatalogManager(c *cli.Context) (*catalog.Manager, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return catalog.NewManager(catalog.Options{
		CacheDir:     cfg.CacheDir,
		FetchTimeout: cfg.Catalog.FetchTimeout,
	})
}

// withCatalog loads the catalog named by the first argument and calls fn.
func withCatalog(c *cli.Context, fn func(*catalog.Manager, *catalog.Catalog) error) error {
	source := c.Args().First()
	if source == "" {
		return cli.Exit("catalog: missing SOURCE", ExitUsage)
	}
	m, err := newCatalogManager(c)
	if err != nil {
		return err
	}
	cat, err := m.Load(c.Context, source, c.Bool("refresh"))
	if err != nil {
		return err
	}
	return fn(m, cat)
}

func filterType(entries []catalog.Entry, typ string) []catalog.Entry {
	var out []catalog.Entry
	for _, e := range entries {
		if e.Dictionary.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "print version information",
	Action: func(c *cli.Context) error {
		info := version.GetVersionInfo()
		fmt.Fprintln(c.App.Writer, info.String())
		return nil
	},
}
