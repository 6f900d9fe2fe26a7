package repo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/entity"
)

// EmployeeCollection is the collection name used by the document backend.
const EmployeeCollection = "employees"

// EmployeeIndexes are created by EnsureIndexes. The unique email index is what
// enforces email uniqueness; there is no application-level check.
var EmployeeIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "emailAddress", Value: 1}},
		Options: options.Index().SetName("uniq_emailAddress").SetUnique(true),
	},
	{
		Keys:    bson.D{{Key: "employment.organizationName", Value: 1}},
		Options: options.Index().SetName("idx_employment_organizationName"),
	},
}

// MongoEmployeeRepo stores each employee as one document keyed by its id.
type MongoEmployeeRepo struct {
	coll *mongo.Collection
}

func NewMongoEmployeeRepo(db *mongo.Database) *MongoEmployeeRepo {
	return &MongoEmployeeRepo{coll: db.Collection(EmployeeCollection)}
}

// EnsureIndexes is idempotent.
func (r *MongoEmployeeRepo) EnsureIndexes(ctx context.Context) error {
	if _, err := r.coll.Indexes().CreateMany(ctx, EmployeeIndexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (r *MongoEmployeeRepo) Create(ctx context.Context, e *entity.Employee) error {
	if _, err := r.coll.InsertOne(ctx, e); err != nil {
		return translateMongoError(err)
	}
	return nil
}

func (r *MongoEmployeeRepo) GetByID(ctx context.Context, id string) (*entity.Employee, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoEmployeeRepo) GetByEmail(ctx context.Context, email string) (*entity.Employee, error) {
	return r.findOne(ctx, bson.M{"emailAddress": email})
}

func (r *MongoEmployeeRepo) findOne(ctx context.Context, filter bson.M) (*entity.Employee, error) {
	var e entity.Employee
	if err := r.coll.FindOne(ctx, filter).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// Update replaces the whole document when its version still matches.
// ReplaceOne is atomic per document.
func (r *MongoEmployeeRepo) Update(ctx context.Context, e *entity.Employee, expectedVersion int64) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": e.ID, "version": expectedVersion}, e)
	if err != nil {
		return translateMongoError(err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": e.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *MongoEmployeeRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping reports whether the deployment is reachable.
func (r *MongoEmployeeRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}

func translateMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateEmail, err)
	}
	return err
}
