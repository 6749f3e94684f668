package improve

import "fmt"

// promptTemplates holds one instruction per language. The transcript is
// substituted for the single %s verb.
var promptTemplates = map[Language]string{
	English: `Below is a transcribed personal audio journal entry. Please:
1. Structure this as a proper journal entry while preserving ALL thoughts and ideas
2. Fix any transcription errors or unclear phrasing
3. Organize into logical paragraphs around themes or topics
4. Add appropriate formatting (date markers, bullet points for distinct thoughts if needed)
5. Identify and tag any key themes, decisions, or recurring concerns [in brackets at relevant points]
6. Maintain the personal voice and tone - this is a private journal
7. Do NOT add interpretations or content that wasn't in the original

Transcribed audio journal:
%s
`,
	Ukrainian: `Нижче наведено транскрибований особистий аудіощоденник. Будь ласка:
1. Структуруйте це як належний запис у щоденнику, зберігаючи ВСІ думки та ідеї
2. Виправте будь-які помилки транскрипції або нечіткі формулювання
3. Організуйте текст у логічні абзаци навколо тем
4. Додайте відповідне форматування (маркери дати, маркери для окремих думок, якщо потрібно)
5. Визначте та позначте ключові теми, рішення чи повторювані проблеми [у дужках у відповідних місцях]
6. Збережіть особистий голос та тон - це приватний щоденник
7. НЕ додавайте інтерпретації або вміст, якого не було в оригіналі

Транскрибований аудіощоденник:
%s
`,
}

// Prompt renders the improvement prompt for lang around transcript.
// Languages without a template use [DefaultLanguage].
func Prompt(lang Language, transcript string) string {
	tmpl, ok := promptTemplates[lang]
	if !ok {
		tmpl = promptTemplates[DefaultLanguage]
	}
	return fmt.Sprintf(tmpl, transcript)
}
