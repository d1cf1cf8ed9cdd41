package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"workhub/internal/app"
	"workhub/internal/config"
	"workhub/internal/db"
	"workhub/internal/domain"
	"workhub/internal/engine"
	"workhub/internal/lifecycle"
	"workhub/internal/repo"
	"workhub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wh",
	Short: "Workhub CLI",
	Long: `Workhub keeps organizations, departments, people, vendors, materials and
the task work built on them. Nothing is hard-deleted right away:
- Delete switches a record and everything it owns to inactive in one step.
- Restore brings back exactly one record, once its parents and critical
  dependencies are active again. Stale watcher, assignee and material
  references are dropped on the way.
- Purge removes inactive records for good once their grace window is over.
- Event log: every change is recorded, view it with 'wh log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	_ = godotenv.Load()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WORKHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/workhub.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(deptCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(vendorCmd())
	rootCmd.AddCommand(materialCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(attachmentCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(restoreCmd())
	rootCmd.AddCommand(rootOfCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default workhub.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if viper.GetBool("json") {
					return printJSON(a.Config)
				}
				cfg := a.Config
				store := cfg.Database.DSN
				if cfg.Database.Driver == "sqlite" && store == "" {
					store = db.Path(viper.GetString("workspace"))
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendRow(table.Row{"driver", cfg.Database.Driver})
				tw.AppendRow(table.Row{"store", store})
				tw.AppendRow(table.Row{"thread max depth", cfg.Lifecycle.ThreadMaxDepth})
				tw.AppendRow(table.Row{"purge interval", cfg.PurgeInterval()})
				tw.AppendRow(table.Row{"purgeable types", strings.Join(cfg.GraceTypes(), ", ")})
				tw.AppendRow(table.Row{"webhooks", len(cfg.Webhooks)})
				tw.Render()
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// app.Open migrates before returning.
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fmt.Println("schema up to date")
				return nil
			})
		},
	}
}

func graphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Show the ownership graph and purge grace windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				g := a.Engine.Lifecycle.Graph
				grace := a.Config.GraceDurations()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Type", "Table", "Owns", "Weak refs", "Critical", "Grace"})
				for _, t := range g.Types() {
					d, _ := g.Declaration(t)
					var owns, weak, critical []string
					for _, e := range d.Owns {
						owns = append(owns, fmt.Sprintf("%s.%s", e.Child, e.ForeignKey))
					}
					for _, w := range d.WeakRefs {
						weak = append(weak, fmt.Sprintf("%s->%s", w.Field, w.Target))
					}
					for _, c := range d.Critical {
						critical = append(critical, fmt.Sprintf("%s->%s", c.Field, c.Target))
					}
					window := "never"
					if dur, ok := grace[t]; ok {
						window = fmt.Sprintf("%dd", int(dur.Hours()/24))
					}
					tw.AppendRow(table.Row{t, d.Table, strings.Join(owns, "\n"), strings.Join(weak, "\n"), strings.Join(critical, "\n"), window})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func orgCmd() *cobra.Command {
	var id, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOrganization(ctx, engine.OrganizationCreateOptions{ID: id, Name: name, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "organization id (generated when empty)")
	create.Flags().StringVar(&name, "name", "", "name")
	_ = create.MarkFlagRequired("name")
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(create)
	return org
}

func deptCmd() *cobra.Command {
	var id, orgID, name, headID string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.CreateDepartment(ctx, engine.DepartmentCreateOptions{
					ID: id, OrganizationID: orgID, Name: name, HeadID: headID, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "department id (generated when empty)")
	create.Flags().StringVar(&orgID, "org", "", "organization id")
	create.Flags().StringVar(&name, "name", "", "name")
	create.Flags().StringVar(&headID, "head", "", "head user id")
	_ = create.MarkFlagRequired("org")
	_ = create.MarkFlagRequired("name")
	dept := &cobra.Command{Use: "dept", Short: "Manage departments"}
	dept.AddCommand(create)
	return dept
}

func userCmd() *cobra.Command {
	var id, orgID, deptID, name, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, engine.UserCreateOptions{
					ID: id, OrganizationID: orgID, DepartmentID: deptID, Name: name, Email: email, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "user id (generated when empty)")
	create.Flags().StringVar(&orgID, "org", "", "organization id")
	create.Flags().StringVar(&deptID, "dept", "", "department id")
	create.Flags().StringVar(&name, "name", "", "name")
	create.Flags().StringVar(&email, "email", "", "email")
	for _, f := range []string{"org", "dept", "name", "email"} {
		_ = create.MarkFlagRequired(f)
	}
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(create)
	return user
}

func vendorCmd() *cobra.Command {
	var id, orgID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create vendor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.CreateVendor(ctx, engine.VendorCreateOptions{ID: id, OrganizationID: orgID, Name: name, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "vendor id (generated when empty)")
	create.Flags().StringVar(&orgID, "org", "", "organization id")
	create.Flags().StringVar(&name, "name", "", "name")
	_ = create.MarkFlagRequired("org")
	_ = create.MarkFlagRequired("name")
	vendor := &cobra.Command{Use: "vendor", Short: "Manage vendors"}
	vendor.AddCommand(create)
	return vendor
}

func materialCmd() *cobra.Command {
	var id, orgID, deptID, vendorID, name string
	var price float64
	create := &cobra.Command{
		Use:   "create",
		Short: "Create material",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMaterial(ctx, engine.MaterialCreateOptions{
					ID: id, OrganizationID: orgID, DepartmentID: deptID, VendorID: vendorID, Name: name, UnitPrice: price, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "material id (generated when empty)")
	create.Flags().StringVar(&orgID, "org", "", "organization id")
	create.Flags().StringVar(&deptID, "dept", "", "department id")
	create.Flags().StringVar(&vendorID, "vendor", "", "vendor id")
	create.Flags().StringVar(&name, "name", "", "name")
	create.Flags().Float64Var(&price, "unit-price", 0, "unit price")
	for _, f := range []string{"org", "dept", "name"} {
		_ = create.MarkFlagRequired(f)
	}
	material := &cobra.Command{Use: "material", Short: "Manage materials"}
	material.AddCommand(create)
	return material
}

func taskCmd() *cobra.Command {
	var id, orgID, deptID, kind, title, desc, vendorID string
	var watchers, assignees, materials []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					ID:             id,
					OrganizationID: orgID,
					DepartmentID:   deptID,
					Kind:           kind,
					Title:          title,
					Description:    desc,
					VendorID:       vendorID,
					WatcherIDs:     watchers,
					AssigneeIDs:    assignees,
					MaterialIDs:    materials,
					ActorID:        actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "task id (generated when empty)")
	create.Flags().StringVar(&orgID, "org", "", "organization id")
	create.Flags().StringVar(&deptID, "dept", "", "department id")
	create.Flags().StringVar(&kind, "kind", "routine", "routine or project")
	create.Flags().StringVar(&title, "title", "", "title")
	create.Flags().StringVar(&desc, "description", "", "description")
	create.Flags().StringVar(&vendorID, "vendor", "", "vendor id")
	create.Flags().StringSliceVar(&watchers, "watcher", nil, "watcher user id (repeatable)")
	create.Flags().StringSliceVar(&assignees, "assignee", nil, "assignee user id (repeatable)")
	create.Flags().StringSliceVar(&materials, "material", nil, "material id (repeatable)")
	for _, f := range []string{"org", "dept", "title"} {
		_ = create.MarkFlagRequired(f)
	}
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(create)
	return task
}

func activityCmd() *cobra.Command {
	var id, taskID, summary string
	create := &cobra.Command{
		Use:   "create",
		Short: "Log activity on a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{ID: id, TaskID: taskID, Summary: summary, ActorID: actorID()})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "activity id (generated when empty)")
	create.Flags().StringVar(&taskID, "task", "", "task id")
	create.Flags().StringVar(&summary, "summary", "", "summary")
	_ = create.MarkFlagRequired("task")
	_ = create.MarkFlagRequired("summary")
	activity := &cobra.Command{Use: "activity", Short: "Manage activities"}
	activity.AddCommand(create)
	return activity
}

func commentCmd() *cobra.Command {
	var id, parent, body string
	var mentions []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Comment on a task, activity or comment",
		Example: `  wh comment create --on task:T1 --body "first"
  wh comment create --on comment:C1 --body "reply" --mention alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(parent)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, notes, err := e.CreateComment(ctx, engine.CommentCreateOptions{
					ID: id, ParentType: string(ref.Type), ParentID: ref.ID, Body: body, MentionIDs: mentions, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"comment": c, "notifications": notes})
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "comment id (generated when empty)")
	create.Flags().StringVar(&parent, "on", "", "parent as type:id")
	create.Flags().StringVar(&body, "body", "", "comment text")
	create.Flags().StringSliceVar(&mentions, "mention", nil, "mentioned user id (repeatable)")
	_ = create.MarkFlagRequired("on")
	_ = create.MarkFlagRequired("body")
	comment := &cobra.Command{Use: "comment", Short: "Manage comments"}
	comment.AddCommand(create)
	return comment
}

func attachmentCmd() *cobra.Command {
	var id, parent, name, url string
	create := &cobra.Command{
		Use:   "create",
		Short: "Attach a file reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(parent)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAttachment(ctx, engine.AttachmentCreateOptions{
					ID: id, ParentType: string(ref.Type), ParentID: ref.ID, FileName: name, URL: url, ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "attachment id (generated when empty)")
	create.Flags().StringVar(&parent, "on", "", "parent as type:id")
	create.Flags().StringVar(&name, "name", "", "file name")
	create.Flags().StringVar(&url, "url", "", "file url")
	for _, f := range []string{"on", "name", "url"} {
		_ = create.MarkFlagRequired(f)
	}
	attachment := &cobra.Command{Use: "attachment", Short: "Manage attachments"}
	attachment.AddCommand(create)
	return attachment
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <type:id>",
		Aliases: []string{"show"},
		Short:   "Show any entity, inactive included",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ent, err := e.Get(ctx, ref)
				if err != nil {
					return err
				}
				return printJSON(ent)
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type:id>",
		Short: "Soft-delete an entity and everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Delete(ctx, ref, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printRefs(fmt.Sprintf("deactivated %d of %d visited", len(res.Deactivated), len(res.Visited)), res.Deactivated)
				return nil
			})
		},
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <type:id>",
		Short: "Restore a single entity",
		Long:  "Restore reactivates one record. Owned records stay inactive and have to be restored one by one, parents first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Restore(ctx, ref, actorID())
				var blocked *lifecycle.RestoreBlockedError
				if errors.As(err, &blocked) {
					return fmt.Errorf("%w; restore %s:%s first", err, blocked.RefType, blocked.RefID)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
}

func rootOfCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "root <type:id>",
		Short: "Resolve the task an entity belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				taskID, ok, err := e.GroupingRoot(ctx, ref)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"found": ok, "task_id": taskID})
				}
				if !ok {
					fmt.Println("no grouping task")
					return nil
				}
				fmt.Println(taskID)
				return nil
			})
		},
	}
}

func purgeCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove inactive records past their grace window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.PurgeExpired(ctx, dryRun)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Type", "Count"})
				types := make([]string, 0, len(report.Counts))
				for t := range report.Counts {
					types = append(types, string(t))
				}
				sort.Strings(types)
				for _, t := range types {
					tw.AppendRow(table.Row{t, report.Counts[domain.EntityType(t)]})
				}
				tw.AppendFooter(table.Row{"total", len(report.Purged)})
				if dryRun {
					tw.SetTitle("dry run")
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without removing")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:     "log",
		Aliases: []string{"events"},
		Short:   "Event log",
		Long:    "Every create, delete, restore, weak-reference repair and purge is recorded here.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.OrganizationID, "org", "", "filter by organization")
	cmd.Flags().StringVar(&f.Type, "type", "", "filter by event type")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "filter by entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "filter by entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				raw, key, err := a.CreateAPIKey(ctx, actorID(), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "actor_id": key.ActorID, "prefix": key.Prefix, "key": raw})
				}
				fmt.Printf("API key for %s (shown once): %s\n", key.ActorID, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys of the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				owner := actorID()
				if all {
					owner = ""
				}
				keys, err := a.Repo.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Prefix", "Created", "Last used"})
				for _, k := range keys {
					lastUsed := "never"
					if k.LastUsedAt != nil {
						lastUsed = *k.LastUsedAt
					}
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.Prefix + "…", k.CreatedAt, lastUsed})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "list keys of every actor")
	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	apikey.AddCommand(create, list, revoke)
	return apikey
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				secret := viper.GetString("jwt-secret")
				if secret == "" {
					return fmt.Errorf("WORKHUB_JWT_SECRET is required for bearer auth")
				}
				if !cmd.Flags().Changed("addr") && a.Config.Server.Addr != "" {
					addr = a.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
					basePath = a.Config.Server.BasePath
				}
				e := a.Engine
				dispatcher := server.NewDispatcher(a.Repo, a.Config.Webhooks, a.Logger)
				e.Hooks = append(e.Hooks, dispatcher.Hook)
				go dispatcher.Run(ctx)
				go server.RunPurger(ctx, e, a.Config.PurgeInterval(), a.Logger)

				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:              secret,
						Issuer:                 viper.GetString("jwt-issuer"),
						Audience:               viper.GetString("jwt-audience"),
						AllowLegacyActorHeader: allowLegacy,
						Logger:                 a.Logger,
					},
					CORSOrigins: a.Config.Server.CORSOrigins,
					Logger:      a.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving workhub api", "addr", addr, "base_path", basePath, "docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Id without credentials")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	cmd.Flags().String("jwt-issuer", "", "required iss claim, if set")
	cmd.Flags().String("jwt-audience", "", "required aud claim, if set")
	for _, name := range []string{"jwt-secret", "jwt-issuer", "jwt-audience"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	logger := app.NewLogger(os.Stderr, viper.GetString("log-level"), viper.GetString("log-format"))
	a, err := app.Open(ctx, app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigFile: viper.GetString("config"),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func actorID() string {
	return viper.GetString("actor-id")
}

// parseRef reads "type:id".
func parseRef(s string) (domain.Ref, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return domain.Ref{}, fmt.Errorf("expected type:id, got %q", s)
	}
	t, err := domain.ParseEntityType(kind)
	if err != nil {
		return domain.Ref{}, err
	}
	return domain.Ref{Type: t, ID: id}, nil
}

func printRefs(title string, refs []domain.Ref) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle(title)
	tw.AppendHeader(table.Row{"Type", "ID"})
	for _, r := range refs {
		tw.AppendRow(table.Row{r.Type, r.ID})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
