package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jetsonsystems/mediamanager/pkg/catalog"
	"github.com/jetsonsystems/mediamanager/pkg/common"
)

func runShow(ctx context.Context, cat *catalog.Catalog, args []string) error {
	fs := flag.NewFlagSet(showCmd, flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mmcat show <id>")
	}
	img, err := cat.Show(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(img)
}

func runFindByTags(ctx context.Context, cat *catalog.Catalog, args []string) error {
	fs := flag.NewFlagSet(findTagsCmd, flag.ExitOnError)
	groupOp := fs.String("op", "AND", "AND or OR")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mmcat find-by-tags [-op AND|OR] <tag> [tag...]")
	}
	images, err := cat.FindByTags(ctx, common.TagFilter{GroupOp: common.GroupOp(*groupOp), Tags: fs.Args()})
	if err != nil {
		return err
	}
	return printJSON(images)
}

func runTrash(ctx context.Context, cat *catalog.Catalog, args []string) error {
	fs := flag.NewFlagSet(trashCmd, flag.ExitOnError)
	list := fs.Bool("list", false, "list trashed images instead of trashing new ones")
	fs.Parse(args)
	if *list {
		images, err := cat.ViewTrash(ctx)
		if err != nil {
			return err
		}
		return printJSON(images)
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mmcat trash <id> [id...]")
	}
	images, err := cat.SendToTrash(ctx, fs.Args(), time.Now())
	if err != nil {
		return err
	}
	return printJSON(images)
}

func runRestore(ctx context.Context, cat *catalog.Catalog, args []string) error {
	fs := flag.NewFlagSet(restoreCmd, flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mmcat restore <id> [id...]")
	}
	images, err := cat.RestoreFromTrash(ctx, fs.Args())
	if err != nil {
		return err
	}
	return printJSON(images)
}

func runDelete(ctx context.Context, cat *catalog.Catalog, args []string) error {
	fs := flag.NewFlagSet(deleteCmd, flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mmcat delete <id> [id...]")
	}
	return cat.DeleteImages(ctx, fs.Args())
}

func runEmptyTrash(ctx context.Context, cat *catalog.Catalog) error {
	n, err := cat.EmptyTrash(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("emptied %d image(s) from trash\n", n)
	return nil
}

func runTags(ctx context.Context, cat *catalog.Catalog, args []string) error {
	fs := flag.NewFlagSet(tagsCmd, flag.ExitOnError)
	add := fs.String("add", "", "comma-separated tags to add to <id>")
	remove := fs.String("remove", "", "comma-separated tags to remove from <id>")
	all := fs.Bool("all", false, "list every tag in the catalog")
	fs.Parse(args)

	if *all {
		tags, err := cat.TagsGetAll(ctx)
		if err != nil {
			return err
		}
		return printJSON(tags)
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: mmcat tags [-add a,b] [-remove c] <id>")
	}
	id := fs.Arg(0)

	if *add != "" {
		img, err := cat.TagsAdd(ctx, id, splitCSV(*add))
		if err != nil {
			return err
		}
		return printJSON(img)
	}
	if *remove != "" {
		img, err := cat.TagsRemove(ctx, id, splitCSV(*remove))
		if err != nil {
			return err
		}
		return printJSON(img)
	}

	tags, err := cat.TagsGetImagesTags(ctx, []string{id})
	if err != nil {
		return err
	}
	return printJSON(tags[id])
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
