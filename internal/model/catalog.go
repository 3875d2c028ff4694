package model

// 以下为外部模块（商品目录、用户中心）的只读视图，表结构由对应模块维护

const ProjectStatusPublished = "PUBLISHED"

type ProjectRecord struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	UserID  int64  `gorm:"index;not null" json:"user_id"`
	Title   string `gorm:"type:varchar(128)" json:"title"`
	Price   int64  `gorm:"not null" json:"price"`
	Status  string `gorm:"type:varchar(20);not null" json:"status"`
	Deleted bool   `gorm:"not null;default:false" json:"deleted"`
}

func (ProjectRecord) TableName() string {
	return "project"
}

type UserRecord struct {
	ID      int64 `gorm:"primaryKey" json:"id"`
	Deleted bool  `gorm:"not null;default:false" json:"deleted"`
}

func (UserRecord) TableName() string {
	return "user"
}
