package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/loader"
	"github.com/sagerenn/lexis/internal/dict/registry"
)

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "install a dictionary file, converting it when needed",
	ArgsUsage: "PATH",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "treat PATH as `FORMAT` (see formats)"},
		&cli.StringFlag{Name: "name", Usage: "install under `NAME` instead of the file name"},
	},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return cli.Exit("import: missing PATH", ExitUsage)
		}
		a, err := openApp(c)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Registry.Import(c.Context, path, c.String("format"), c.String("name"))
		if err != nil {
			if stage := dict.StageOf(err); stage != "" {
				return cli.Exit(fmt.Sprintf("import failed during %s: %v", stage, err), 1)
			}
			return err
		}
		info, _ := a.Registry.Info(id)
		fmt.Fprintf(c.App.Writer, "installed %s (%s, %d entries)\n", id, info.DisplayName, info.EntryCount)
		return nil
	},
}

var removeCommand = &cli.Command{
	Name:      "remove",
	Usage:     "uninstall a dictionary",
	ArgsUsage: "ID",
	Action: func(c *cli.Context) error {
		a, err := openApp(c)
		if err != nil {
			return err
		}
		defer a.Close()

		src, err := findInstalled(a.Registry, c.Args().First())
		if err != nil {
			return err
		}
		if err := a.Registry.Delete(src.InstalledID); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "removed %s\n", src.InstalledID)
		return nil
	},
}

var enableCommand = &cli.Command{
	Name:      "enable",
	Usage:     "include a dictionary in searches",
	ArgsUsage: "ID",
	Action:    setEnabled(true),
}

var disableCommand = &cli.Command{
	Name:      "disable",
	Usage:     "exclude a dictionary from searches",
	ArgsUsage: "ID",
	Action:    setEnabled(false),
}

func setEnabled(enabled bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := openApp(c)
		if err != nil {
			return err
		}
		defer a.Close()

		src, err := findInstalled(a.Registry, c.Args().First())
		if err != nil {
			return err
		}
		if _, err := a.Registry.SetEnabled(src.InstalledID, enabled); err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Fprintf(c.App.Writer, "%s %s\n", state, src.InstalledID)
		return nil
	}
}

// findInstalled matches name against the installed id, the embedded id and
// the label, in that order.
func findInstalled(reg *registry.Registry, name string) (registry.Source, error) {
	if name == "" {
		return registry.Source{}, cli.Exit("missing ID", ExitUsage)
	}
	if src, ok := reg.Info(name); ok {
		return src, nil
	}
	list := reg.List()
	for _, s := range list {
		if s.ID == name {
			return s, nil
		}
	}
	for _, s := range list {
		if strings.EqualFold(s.DisplayName, name) {
			return s, nil
		}
	}
	return registry.Source{}, cli.Exit(fmt.Sprintf("no installed dictionary %q", name), 1)
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "show installed dictionaries",
	Action: func(c *cli.Context) error {
		a, err := openApp(c)
		if err != nil {
			return err
		}
		defer a.Close()

		list := a.Registry.List()
		if len(list) == 0 {
			fmt.Fprintln(c.App.Writer, "no dictionaries installed")
			return nil
		}
		tbl := table.New("Installed ID", "Label", "Entries", "Enabled", "ID").WithWriter(c.App.Writer)
		for _, s := range list {
			tbl.AddRow(s.InstalledID, s.DisplayName, s.EntryCount, strconv.FormatBool(s.Enabled), s.ID)
		}
		tbl.Print()
		return nil
	},
}

var formatsCommand = &cli.Command{
	Name:  "formats",
	Usage: "list importable formats",
	Action: func(c *cli.Context) error {
		tbl := table.New("Format", "Extensions", "Description").WithWriter(c.App.Writer)
		for _, f := range loader.SupportedFormats() {
			tbl.AddRow(f.Name, strings.Join(f.Extensions, " "), f.Description)
		}
		tbl.Print()
		return nil
	},
}
