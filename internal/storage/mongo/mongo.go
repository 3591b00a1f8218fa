// mongo реализует storage.Storage поверх MongoDB.
//
// Пользователь хранится одним документом коллекции users; набор
// refresh-токенов: вложенный массив refresh_tokens, который меняется
// только атомарными $push/$pull.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pribylovaa/bytebot-auth/internal/models"
	"github.com/pribylovaa/bytebot-auth/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection = "users"
	defaultDBName   = "bytebot"
)

// Mongo: адаптер хранилища учётных записей для MongoDB.
type Mongo struct {
	client *mongodriver.Client
	db     *mongodriver.Database
	users  *mongodriver.Collection
	hasher models.PasswordHasher
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Mongo)(nil)

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
// hasher используется для hash-on-write в CreateUser/SaveUser.
func New(ctx context.Context, uri string, hasher models.PasswordHasher) (*Mongo, error) {
	const op = "storage.mongo.New"

	if uri == "" {
		return nil, fmt.Errorf("%s: empty uri", op)
	}
	if hasher == nil {
		return nil, fmt.Errorf("%s: nil password hasher", op)
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := cli.Database(databaseFromURI(uri))
	m := &Mongo{
		client: cli,
		db:     db,
		users:  db.Collection(usersCollection),
		hasher: hasher,
	}

	if err := m.ensureIndexes(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return m, nil
}

// Close отключается от MongoDB.
func (m *Mongo) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = m.client.Disconnect(ctx)
}

// ensureIndexes создаёт индексы коллекции users:
//   - уникальный по email;
//   - multikey по refresh_tokens.token для поиска владельца токена;
//   - multikey по refresh_tokens.expires_at для очистки просроченных.
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	idx := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "refresh_tokens.token", Value: 1}},
			Options: options.Index().SetName("refresh_tokens_token"),
		},
		{
			Keys:    bson.D{{Key: "refresh_tokens.expires_at", Value: 1}},
			Options: options.Index().SetName("refresh_tokens_expires_at"),
		},
	}

	if _, err := m.users.Indexes().CreateMany(ctx, idx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	return nil
}

// databaseFromURI извлекает имя базы из пути URI; по умолчанию defaultDBName.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}

	return defaultDBName
}
