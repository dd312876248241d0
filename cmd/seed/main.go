package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/precinct-ops/duty-roster/backend/internal/config"
	"github.com/precinct-ops/duty-roster/backend/internal/domain"
	"github.com/precinct-ops/duty-roster/backend/internal/repository"
	"github.com/precinct-ops/duty-roster/backend/internal/seed"
	"github.com/precinct-ops/duty-roster/backend/internal/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var file string
	var randomSeed int64

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机警员, 2: 插入默认班次, 3: 生成循环排班与搭档, 4: 从 CSV 导入警员)")
	flag.IntVar(&n, "n", 0, "要插入的警员数量，默认使用配置 SEED_OFFICERS")
	flag.StringVar(&file, "file", "", "CSV 文件路径，默认使用配置 SEED_OFFICERS_CSV")
	flag.Int64Var(&randomSeed, "seed", time.Now().UnixNano(), "随机数种子")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	if cfg.Database.AutoMigrate {
		if err := repository.RunMigrations(dbpool, logger); err != nil {
			logger.Error("数据库迁移失败", "error", err)
			return
		}
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)
	rng := rand.New(rand.NewSource(randomSeed))
	ctx = context.Background()

	// 执行操作
	switch op {
	case 0:
		logger.Error("未指定操作")
	case 1:
		if n == 0 {
			n = cfg.Seed.Officers
		}
		if n <= 0 {
			logger.Error("请输入合法的警员数量")
			return
		}

		now := time.Now()
		officers := make([]*domain.Officer, n)
		for i := range officers {
			officers[i] = utils.GenerateRandomOfficer(rng, now, cfg.Seed.ProbationRate)
		}
		seed.Officers(ctx, repo, officers, logger)
	case 2:
		shiftTypes, err := seed.ShiftTypes(ctx, repo)
		if err != nil {
			logger.Error("无法插入班次", slog.String("error", err.Error()))
			return
		}
		logger.Info("插入班次成功", slog.Int("count", len(shiftTypes)))
	case 3:
		officers, err := repo.ListOfficers(ctx)
		if err != nil {
			logger.Error("无法获取警员", slog.String("error", err.Error()))
			return
		}
		shiftTypes, err := repo.ListShiftTypes(ctx)
		if err != nil {
			logger.Error("无法获取班次", slog.String("error", err.Error()))
			return
		}
		if len(officers) == 0 || len(shiftTypes) == 0 {
			logger.Error("请先插入警员和班次")
			return
		}

		plan := seed.BuildPlan(officers, shiftTypes, rng)
		history := seed.History(plan, time.Now(), cfg.Seed.Weeks)
		if err := seed.Write(ctx, repo, plan, history, logger); err != nil {
			logger.Error("无法插入排班", slog.String("error", err.Error()))
			return
		}
	case 4:
		if file == "" {
			file = cfg.Seed.OfficersCSV
		}
		if file == "" {
			logger.Error("请指定 CSV 文件路径")
			return
		}

		f, err := os.Open(file)
		if err != nil {
			logger.Error("打开文件失败", slog.String("error", err.Error()))
			return
		}
		defer f.Close()

		officers, err := seed.ReadOfficersCSV(f)
		if err != nil {
			logger.Error("解析 CSV 失败", slog.String("error", err.Error()))
			return
		}
		seed.Officers(ctx, repo, officers, logger)
	default:
		logger.Error("指定的操作非法")
	}
}
