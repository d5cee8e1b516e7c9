package database

import (
	"context"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-faster/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type userRow struct {
	ID                 int64 `gorm:"primaryKey;autoIncrement:false"`
	Name               string
	Subscription       string
	Language           string
	Format             string
	IncludeDescription bool
	VideoPlusAudio     bool
	Downloads          int64
	Joined             time.Time
}

func (userRow) TableName() string { return "users" }

func rowFromUser(u *User) userRow {
	return userRow{
		ID:                 u.ID,
		Name:               u.Name,
		Subscription:       u.Subscription,
		Language:           u.Language,
		Format:             string(u.Format),
		IncludeDescription: u.IncludeDescription,
		VideoPlusAudio:     u.VideoPlusAudio,
		Downloads:          u.Downloads,
		Joined:             u.Joined,
	}
}

func (r userRow) user() *User {
	return &User{
		ID:                 r.ID,
		Name:               r.Name,
		Subscription:       r.Subscription,
		Language:           r.Language,
		Format:             Format(r.Format),
		IncludeDescription: r.IncludeDescription,
		VideoPlusAudio:     r.VideoPlusAudio,
		Downloads:          r.Downloads,
		Joined:             r.Joined,
	}
}

var settingColumns = []string{"language", "format", "include_description", "video_plus_audio"}

type SQLite struct {
	db  *gorm.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "відкриття sqlite")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "sqlite пул")
	}
	// sqlite не любить паралельних записів
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "міграція таблиці users")
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) GetOrCreate(ctx context.Context, p Profile) (*User, error) {
	db := s.db.WithContext(ctx)

	var row userRow
	err := db.First(&row, "id = ?", p.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fresh := rowFromUser(NewUser(p, s.now()))
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error; err != nil {
			return nil, errors.Wrap(err, "створення користувача")
		}
		err = db.First(&row, "id = ?", p.ID).Error
	}
	if err != nil {
		return nil, errors.Wrap(err, "читання користувача")
	}

	u := row.user()
	if normalize(u) {
		fixed := rowFromUser(u)
		if err := db.Model(&userRow{ID: u.ID}).Select(append(settingColumns, "subscription")).Updates(&fixed).Error; err != nil {
			return u, errors.Wrap(err, "виправлення користувача")
		}
	}
	return u, nil
}

func (s *SQLite) Save(ctx context.Context, u *User) error {
	cp := *u
	normalize(&cp)
	row := rowFromUser(&cp)
	res := s.db.WithContext(ctx).Model(&userRow{ID: u.ID}).Select(settingColumns).Updates(&row)
	if res.Error != nil {
		return errors.Wrap(res.Error, "збереження користувача")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) IncrementDownloads(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userRow{}).Where("id = ?", id).
			UpdateColumn("downloads", gorm.Expr("downloads + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&userRow{}).Select("downloads").Where("id = ?", id).Scan(&n).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, err
		}
		return 0, errors.Wrap(err, "лічильник завантажень")
	}
	return n, nil
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
