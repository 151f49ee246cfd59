package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/veilmush/goveilmush/pkg/boltstore"
	"github.com/veilmush/goveilmush/pkg/eval"
	"github.com/veilmush/goveilmush/pkg/eval/functions"
	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// evaltest is a softcode REPL for poking at the evaluator against a world
// snapshot (or a minimal throwaway world).
func main() {
	worldPath := flag.String("world", "", "Path to a world.db snapshot to load")
	player := flag.Int("player", 1, "DBRef number to use as executor context")
	expr := flag.String("e", "", "Expression to evaluate (non-interactive mode)")
	batch := flag.String("batch", "", "File with expressions to evaluate (one per line)")
	flag.Parse()

	var db *gamedb.Database

	if *worldPath != "" {
		store, err := boltstore.Open(*worldPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening world: %v\n", err)
			os.Exit(1)
		}
		db, _, err = store.LoadAll()
		store.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading world: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Loaded %d objects from %s\n", db.Size(), *worldPath)
	} else {
		db = gamedb.NewDatabase()
		room, _ := db.Create(gamedb.TypeRoom, "Room Zero", 1, gamedb.Nothing, 0)
		wiz, _ := db.Create(gamedb.TypePlayer, "Wizard", 1, room, 0)
		wizObj := db.Get(wiz)
		wizObj.Owner = wiz
		wizObj.SetFlag(gamedb.FlagWizard, true)
		fmt.Fprintln(os.Stderr, "Using minimal test world (no snapshot loaded)")
	}

	ctx := eval.NewEvalContext(db)
	ctx.Executor = gamedb.DBRef(*player)
	ctx.Enactor = gamedb.DBRef(*player)
	functions.RegisterAll(ctx)

	if *expr != "" {
		fmt.Println(ctx.Eval(*expr))
		return
	}

	if *batch != "" {
		runBatch(ctx, *batch)
		return
	}

	fmt.Println("GoVeilMUSH softcode REPL")
	fmt.Printf("Executor context: #%d\n", *player)
	fmt.Println("Type expressions to evaluate. Ctrl+C or 'quit' to exit.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("veil> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		fmt.Println(ctx.Eval(line))
	}
}

// runBatch evaluates a file of expressions, one per line. Lines of the
// form "expr | expected" are checked and reported PASS/FAIL.
func runBatch(ctx *eval.EvalContext, path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening batch file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	failed := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " | ", 2)
		result := ctx.Eval(parts[0])

		if len(parts) == 2 {
			status := "PASS"
			if result != parts[1] {
				status = "FAIL"
				failed++
			}
			fmt.Printf("[%s] Line %d: %s\n", status, lineNum, parts[0])
			if status == "FAIL" {
				fmt.Printf("  Expected: %s\n", parts[1])
				fmt.Printf("  Got:      %s\n", result)
			}
		} else {
			fmt.Printf("Line %d: %s => %s\n", lineNum, parts[0], result)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
