package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/utafrali/authservice/internal/domain"
	"github.com/utafrali/authservice/internal/repository"
	"github.com/utafrali/authservice/pkg/database"
	apperrors "github.com/utafrali/authservice/pkg/errors"
)

// UsersCollection is the collection holding user documents.
const UsersCollection = "users"

type userDocument struct {
	ID         bson.ObjectID `bson:"_id,omitempty"`
	Name       string        `bson:"name,omitempty"`
	Email      string        `bson:"email,omitempty"`
	Password   string        `bson:"password,omitempty"`
	Role       string        `bson:"role,omitempty"`
	IsActive   bool          `bson:"isActive"`
	IsVerified bool          `bson:"isVerified"`
	Image      string        `bson:"image,omitempty"`
	CreatedAt  time.Time     `bson:"createdAt,omitempty"`
	UpdatedAt  time.Time     `bson:"updatedAt,omitempty"`
}

func toDocument(u *domain.User) userDocument {
	return userDocument{
		Name:       u.Name,
		Email:      u.Email,
		Password:   u.PasswordHash,
		Role:       u.Role,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
		Image:      u.Image,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.Password,
		Role:         d.Role,
		IsActive:     d.IsActive,
		IsVerified:   d.IsVerified,
		Image:        d.Image,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// UserRepository implements repository.UserRepository using MongoDB.
type UserRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewUserRepository creates a new MongoDB-backed user repository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		coll: db.Collection(UsersCollection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the unique email index. It is idempotent.
func (r *UserRepository) EnsureIndexes(ctx context.Context) (err error) {
	ctx, end := database.TraceCommand(ctx, UsersCollection, "createIndexes")
	defer func() { end(err) }()

	_, err = r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: repository.FieldEmail, Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

// FindByEmail retrieves a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string, includePassword bool) (user *domain.User, err error) {
	ctx, end := database.TraceCommand(ctx, UsersCollection, "findOne")
	defer func() { end(ignoreNotFound(err)) }()

	opts := options.FindOne()
	if !includePassword {
		opts.SetProjection(bson.D{{Key: repository.FieldPassword, Value: 0}})
	}

	var doc userDocument
	err = r.coll.FindOne(ctx, bson.D{{Key: repository.FieldEmail, Value: domain.NormalizeEmail(email)}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("user", email)
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return doc.toDomain(), nil
}

// FindByID retrieves a user by id with the requested projection.
func (r *UserRepository) FindByID(ctx context.Context, id string, fields ...string) (user *domain.User, err error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NotFound("user", id)
	}

	ctx, end := database.TraceCommand(ctx, UsersCollection, "findOne")
	defer func() { end(ignoreNotFound(err)) }()

	var doc userDocument
	err = r.coll.FindOne(ctx, bson.D{{Key: repository.FieldID, Value: oid}},
		options.FindOne().SetProjection(projection(fields)),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return doc.toDomain(), nil
}

// Create inserts a new user document. Roles outside domain.ValidRoles are
// rejected with domain.ErrInvalidRole before anything is written.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	if !domain.IsValidRole(u.Role) {
		return fmt.Errorf("create user: %w: %q", domain.ErrInvalidRole, u.Role)
	}

	ctx, end := database.TraceCommand(ctx, UsersCollection, "insertOne")
	defer func() { end(err) }()

	// BSON dates carry millisecond precision.
	now := r.now().UTC().Truncate(time.Millisecond)
	u.CreatedAt = now
	u.UpdatedAt = now

	doc := toDocument(u)
	doc.ID = bson.NewObjectID()

	if _, err = r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.Conflict("Email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}

	u.ID = doc.ID.Hex()
	return nil
}

// SetActive updates the active flag and returns the updated user.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) (user *domain.User, err error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperrors.NotFound("user", id)
	}

	ctx, end := database.TraceCommand(ctx, UsersCollection, "findOneAndUpdate")
	defer func() { end(ignoreNotFound(err)) }()

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: repository.FieldIsActive, Value: active},
		{Key: repository.FieldUpdatedAt, Value: r.now().UTC().Truncate(time.Millisecond)},
	}}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(projection(nil))

	var doc userDocument
	err = r.coll.FindOneAndUpdate(ctx, bson.D{{Key: repository.FieldID, Value: oid}}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("user", id)
		}
		return nil, fmt.Errorf("update user status: %w", err)
	}
	return doc.toDomain(), nil
}

// projection builds an inclusion projection from fields. The password hash
// is never part of it; an empty list excludes only the password hash.
func projection(fields []string) bson.D {
	proj := bson.D{}
	for _, f := range fields {
		if f == repository.FieldPassword {
			continue
		}
		proj = append(proj, bson.E{Key: f, Value: 1})
	}
	if len(proj) == 0 {
		return bson.D{{Key: repository.FieldPassword, Value: 0}}
	}
	return proj
}

// ignoreNotFound keeps expected misses from marking the span as failed.
func ignoreNotFound(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}
