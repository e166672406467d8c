// This program performs offline administrative tasks against the block
// storage of a stopped kadchain node.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/kadchain/blockchain/app/tooling/admin/commands"
	"github.com/kadchain/blockchain/foundation/blockchain/database"
	"github.com/kadchain/blockchain/foundation/blockchain/genesis"
	"github.com/kadchain/blockchain/foundation/blockchain/storage/disk"
	"github.com/kadchain/blockchain/foundation/blockchain/storage/leveldb"
	"github.com/kadchain/blockchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args    conf.Args
		Storage string `conf:"default:disk"`
		DBPath  string `conf:"default:zblock/blocks/"`
		Genesis string `conf:"default:zblock/genesis.json"`
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "kadchain admin tool",
		},
	}

	const prefix = "ADMIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen, err := genesis.Load(cfg.Genesis)
	if err != nil {
		return err
	}

	var storage database.Storage
	switch cfg.Storage {
	case "disk":
		storage, err = disk.New(cfg.DBPath)
	case "leveldb":
		storage, err = leveldb.New(cfg.DBPath)
	default:
		return fmt.Errorf("storage %q holds no blocks between runs", cfg.Storage)
	}
	if err != nil {
		return err
	}

	// Loading the database replays and validates every stored block.
	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...))
	}
	db, err := database.New(gen, storage, ev)
	if err != nil {
		return fmt.Errorf("loading chain: %w", err)
	}
	defer db.Close()

	return processCommands(cfg.Args, db)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, db *database.Database) error {
	switch args.Num(0) {
	case "bals":
		if err := commands.Balances(args.Num(1), db); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}
	case "stakes":
		if err := commands.Stakes(db); err != nil {
			return fmt.Errorf("getting stakes: %w", err)
		}
	case "blocks":
		if err := commands.Blocks(args.Num(1), db); err != nil {
			return fmt.Errorf("getting blocks: %w", err)
		}
	default:
		fmt.Println("bals [account]: show the balances after replaying the chain")
		fmt.Println("stakes:         show the accounts holding a stake")
		fmt.Println("blocks [from]:  list the stored blocks")
	}

	return nil
}
