package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/ithil/pensieve/internal"
	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/vcs"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// withEnv wraps an action that needs the opened collection.
func withEnv(fn func(ctx context.Context, cmd *cli.Command, env *internal.Env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		env, err := openEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer env.Close()
		return fn(ctx, cmd, env)
	}
}

// args returns exactly n positional arguments.
func args(cmd *cli.Command, n int) ([]string, error) {
	if cmd.Args().Len() != n {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d (usage: %s %s)",
			cmd.Name, n, cmd.Args().Len(), cmd.Name, cmd.ArgsUsage)
	}
	return cmd.Args().Slice(), nil
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Create a new collection",
		ArgsUsage: "[dir]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Collection name (defaults to the directory name)"},
			&cli.BoolFlag{Name: "git", Usage: "Track the collection with git"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.Args().First()
			if dir == "" {
				dir = "."
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			cfg := &collection.Config{Name: cmd.String("name"), UseGit: cmd.Bool("git")}
			var opts []collection.Option
			if cfg.UseGit {
				if !vcs.Available() {
					return fmt.Errorf("init: git binary not found")
				}
				opts = append(opts, collection.WithVersionControl(vcs.NewGit(abs)))
			}
			c, err := collection.Init(ctx, abs, cfg, opts...)
			if err != nil {
				return err
			}
			green.Printf("Initialized collection %q at %s\n", c.Name(), c.Root())
			return nil
		},
	}
}

func linkCommand() *cli.Command {
	return &cli.Command{
		Name:      "link",
		Usage:     "Link one note to another",
		ArgsUsage: "<source> <target>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "prop", Aliases: []string{"p"}, Usage: "Link property (repeatable)"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			if _, err := env.Service.AddLink(ctx, a[0], a[1], cmd.StringSlice("prop")); err != nil {
				return err
			}
			green.Printf("Linked %s -> %s\n", a[0], a[1])
			return nil
		}),
	}
}

func unlinkCommand() *cli.Command {
	return &cli.Command{
		Name:      "unlink",
		Usage:     "Remove the link between two notes",
		ArgsUsage: "<source> <target>",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			if _, err := env.Service.RemoveLink(ctx, a[0], a[1]); err != nil {
				return err
			}
			green.Printf("Unlinked %s -> %s\n", a[0], a[1])
			return nil
		}),
	}
}

func moveLinkCommand() *cli.Command {
	return &cli.Command{
		Name:      "move-link",
		Usage:     "Shift a link within the ordered links of its source",
		ArgsUsage: "<source> <target> <delta>",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			a, err := args(cmd, 3)
			if err != nil {
				return err
			}
			delta, err := strconv.Atoi(a[2])
			if err != nil {
				return fmt.Errorf("move-link: delta %q is not an integer", a[2])
			}
			rel, err := env.Service.MoveLink(ctx, a[0], a[1], delta)
			if err != nil {
				return err
			}
			for i, e := range rel.Links {
				fmt.Printf("%3d  %s\n", i, e.Path)
			}
			return nil
		}),
	}
}

func moveCommand() *cli.Command {
	return &cli.Command{
		Name:      "move",
		Usage:     "Send a note to another stack",
		ArgsUsage: "<path> <stack>",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			p, err := env.Service.MoveNote(ctx, a[0], a[1])
			if err != nil {
				return err
			}
			green.Printf("Moved to %s\n", p)
			return nil
		}),
	}
}

func renameCommand() *cli.Command {
	return &cli.Command{
		Name:      "rename",
		Usage:     "Rename a note within its stack",
		ArgsUsage: "<path> <name>",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			a, err := args(cmd, 2)
			if err != nil {
				return err
			}
			p, err := env.Service.RenameNote(ctx, a[0], a[1])
			if err != nil {
				return err
			}
			green.Printf("Renamed to %s\n", p)
			return nil
		}),
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a note and every link to it",
		ArgsUsage: "<path>",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			a, err := args(cmd, 1)
			if err != nil {
				return err
			}
			if err := env.Service.DeleteNote(ctx, a[0]); err != nil {
				return err
			}
			green.Printf("Deleted %s\n", a[0])
			return nil
		}),
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Drop text or a file into the inbox",
		ArgsUsage: "[text...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Copy this file into the inbox"},
			&cli.StringFlag{Name: "name", Usage: "Filename for text notes"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			if src := cmd.String("file"); src != "" {
				n, err := env.Collection.SendFile(src)
				if err != nil {
					return err
				}
				if err := env.Service.Sync(ctx); err != nil {
					yellow.Printf("Warning: index not updated: %v\n", err)
				}
				green.Printf("Created %s\n", n.Path())
				return nil
			}
			text := strings.Join(cmd.Args().Slice(), " ")
			if text == "" {
				return fmt.Errorf("send: text or --file is required")
			}
			d, err := env.Service.SendText(ctx, text, cmd.String("name"))
			if err != nil {
				return err
			}
			green.Printf("Created %s\n", d.Path)
			return nil
		}),
	}
}

func dateCommand() *cli.Command {
	return &cli.Command{
		Name:      "date",
		Usage:     "Print, or create, the date note of a day",
		ArgsUsage: "[YYYY-MM-DD]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "role", Value: collection.RoleCalendar, Usage: "Special-stack role or stack path"},
			&cli.BoolFlag{Name: "create", Usage: "Create the note when missing"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			date := env.Collection.Now()
			if raw := cmd.Args().First(); raw != "" && raw != "today" {
				d, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
				if err != nil {
					return fmt.Errorf("date: %q is not YYYY-MM-DD", raw)
				}
				date = d
			}
			d, err := env.Service.DateNode(ctx, cmd.String("role"), date, cmd.Bool("create"))
			if err != nil {
				return err
			}
			fmt.Println(d.Path)
			return nil
		}),
	}
}

func templateCommand() *cli.Command {
	return &cli.Command{
		Name:  "template",
		Usage: "List and run note templates",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List templates",
				Action: withEnv(func(ctx context.Context, _ *cli.Command, env *internal.Env) error {
					list, err := env.Service.Templates(ctx)
					if err != nil {
						return err
					}
					for _, t := range list {
						state := ""
						if !t.Enabled {
							state = yellow.Sprint(" (disabled)")
						}
						fmt.Printf("%s  %s [%s]%s\n", cyan.Sprint(t.ID), t.Title, t.Type, state)
					}
					return nil
				}),
			},
			{
				Name:      "run",
				Usage:     "Run a template and create its note",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "arg", Aliases: []string{"a"}, Usage: "Template argument as key=value (repeatable)"},
				},
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
					a, err := args(cmd, 1)
					if err != nil {
						return err
					}
					targs := map[string]any{}
					for _, kv := range cmd.StringSlice("arg") {
						k, v, ok := strings.Cut(kv, "=")
						if !ok {
							return fmt.Errorf("template run: argument %q is not key=value", kv)
						}
						targs[k] = v
					}
					d, err := env.Service.RunTemplate(ctx, a[0], targs)
					if err != nil {
						return err
					}
					green.Printf("Created %s\n", d.Path)
					return nil
				}),
			},
		},
	}
}

func portCommand() *cli.Command {
	return &cli.Command{
		Name:  "port",
		Usage: "Manage ports between collections",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List ports",
				Action: withEnv(func(ctx context.Context, _ *cli.Command, env *internal.Env) error {
					for _, p := range env.Service.Ports(ctx) {
						fmt.Printf("%s  %s -> %s:%s\n", cyan.Sprint(p.ID), p.Name, p.CollectionName, p.TargetPath)
					}
					return nil
				}),
			},
			{
				Name:      "add",
				Usage:     "Register a port delivering into another collection",
				ArgsUsage: "<name> <collection> [target-stack]",
				Action: withEnv(func(_ context.Context, cmd *cli.Command, env *internal.Env) error {
					n := cmd.Args().Len()
					if n < 2 || n > 3 {
						return fmt.Errorf("port add: expected 2 or 3 arguments (usage: port add %s)", cmd.ArgsUsage)
					}
					a := cmd.Args().Slice()
					target := ""
					if n == 3 {
						target = a[2]
					}
					p, err := env.Ports.Add(a[0], a[1], target)
					if err != nil {
						return err
					}
					green.Printf("Added port %s (%s)\n", p.Name, p.ID)
					return nil
				}),
			},
			{
				Name:      "remove",
				Usage:     "Unregister a port",
				ArgsUsage: "<id>",
				Action: withEnv(func(_ context.Context, cmd *cli.Command, env *internal.Env) error {
					a, err := args(cmd, 1)
					if err != nil {
						return err
					}
					if err := env.Ports.Remove(a[0]); err != nil {
						return err
					}
					green.Printf("Removed port %s\n", a[0])
					return nil
				}),
			},
			{
				Name:      "send",
				Usage:     "Stage a note for another collection",
				ArgsUsage: "<path> <port>",
				Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
					a, err := args(cmd, 2)
					if err != nil {
						return err
					}
					if err := env.Service.SendToPort(ctx, a[0], a[1]); err != nil {
						return err
					}
					green.Printf("Sent %s to port %s\n", a[0], a[1])
					return nil
				}),
			},
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Report one-sided or dangling relations",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "repair", Usage: "Fix what can be fixed"},
		},
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			if cmd.Bool("repair") {
				fixed, err := env.Service.Repair(ctx)
				if err != nil {
					return err
				}
				for _, inc := range fixed {
					fmt.Println("fixed", inc.String())
				}
				green.Printf("Repaired %d inconsistencies\n", len(fixed))
				return nil
			}
			found, err := env.Service.Check(ctx)
			if err != nil {
				return err
			}
			for _, inc := range found {
				yellow.Println(inc.String())
			}
			if len(found) == 0 {
				green.Println("Relations are consistent")
			}
			return nil
		}),
	}
}

func commitCommand() *cli.Command {
	return &cli.Command{
		Name:      "commit",
		Usage:     "Record a version-control checkpoint",
		ArgsUsage: "[message]",
		Action: withEnv(func(ctx context.Context, cmd *cli.Command, env *internal.Env) error {
			msg := strings.Join(cmd.Args().Slice(), " ")
			if msg == "" {
				msg = "pensieve: checkpoint " + time.Now().Format(time.DateTime)
			}
			if err := env.Service.Commit(ctx, msg); err != nil {
				return err
			}
			green.Println("Committed")
			return nil
		}),
	}
}

func reindexCommand() *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Bring the search index up to date",
		Action: withEnv(func(ctx context.Context, _ *cli.Command, env *internal.Env) error {
			if err := env.Service.Sync(ctx); err != nil {
				return err
			}
			green.Println("Index synchronized")
			return nil
		}),
	}
}
