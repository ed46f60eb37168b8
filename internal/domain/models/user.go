package models

// роли пользователей
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User представляет пользователя
type User struct {
	ID       int64
	Email    string
	Name     string
	Phone    string
	Role     string
	PassHash []byte
}

// Customer - публичная часть пользователя, которую видит админ в списке заказов
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Phone string `json:"phone"`
}

// ToCustomer отбрасывает все поля, кроме разрешённых к показу
func (u *User) ToCustomer() Customer {
	return Customer{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
		Phone: u.Phone,
	}
}

// Principal - аутентифицированный пользователь текущего запроса
type Principal struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	IsAdmin bool   `json:"isAdmin"`
	// Degraded - роль взята из токена/сессии, а не из БД
	Degraded bool `json:"-"`
}
